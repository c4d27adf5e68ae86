package longport

import (
	"strconv"
	"time"

	"warrant-trader/pkg/broker"
)

// orderPayload is the gateway's order representation; quantities and
// prices arrive as strings.
type orderPayload struct {
	OrderID       string `json:"order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	ExecutedQty   string `json:"executed_quantity"`
	ExecutedPrice string `json:"executed_price"`
	Remark        string `json:"remark"`
	UpdatedAtSec  string `json:"updated_at"`
}

// statusMap normalizes gateway statuses into the broker's set.
var statusMap = map[string]broker.OrderStatus{
	"NotReported":    broker.StatusNew,
	"New":            broker.StatusNew,
	"WaitToNew":      broker.StatusNew,
	"PartialFilled":  broker.StatusPartialFilled,
	"Filled":         broker.StatusFilled,
	"WaitToCancel":   broker.StatusCanceled,
	"Canceled":       broker.StatusCanceled,
	"Rejected":       broker.StatusRejected,
	"Expired":        broker.StatusExpired,
	"WaitToReplace":  broker.StatusReplacing,
	"PendingReplace": broker.StatusReplacing,
	"Replaced":       broker.StatusNew,
}

func normalizeStatus(s string) broker.OrderStatus {
	if mapped, ok := statusMap[s]; ok {
		return mapped
	}
	return broker.StatusUnknown
}

func (o orderPayload) toPendingOrder() broker.PendingOrder {
	updated, _ := strconv.ParseInt(o.UpdatedAtSec, 10, 64)
	return broker.PendingOrder{
		OrderID:        o.OrderID,
		Symbol:         o.Symbol,
		Side:           broker.Side(o.Side),
		SubmittedPrice: parseFloat(o.Price),
		Quantity:       parseInt(o.Quantity),
		ExecutedQty:    parseInt(o.ExecutedQty),
		ExecutedPrice:  parseFloat(o.ExecutedPrice),
		Status:         normalizeStatus(o.Status),
		Remark:         o.Remark,
		UpdatedAt:      time.Unix(updated, 0),
	}
}
