package broker

import (
	"context"
	"time"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes the supported brokerage order types.
type OrderType string

const (
	OrderTypeLimit         OrderType = "LO"  // limit order
	OrderTypeEnhancedLimit OrderType = "ELO" // enhanced limit (HK)
	OrderTypeMarket        OrderType = "MO"  // market order
)

// OrderStatus normalizes brokerage status into a small set.
type OrderStatus string

const (
	StatusNew           OrderStatus = "NEW"
	StatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	StatusFilled        OrderStatus = "FILLED"
	StatusCanceled      OrderStatus = "CANCELED"
	StatusRejected      OrderStatus = "REJECTED"
	StatusExpired       OrderStatus = "EXPIRED"
	StatusReplacing     OrderStatus = "REPLACING"
	StatusUnknown       OrderStatus = "UNKNOWN"
)

// Terminal reports whether no further fills can happen for the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// AccountSnapshot is a point-in-time view of account purchasing power.
type AccountSnapshot struct {
	TotalCash      float64   `json:"total_cash"`
	AvailableCash  float64   `json:"available_cash"`
	BuyPower       float64   `json:"buy_power"`
	Currency       string    `json:"currency"`
	RetrievedAt    time.Time `json:"retrieved_at"`
	RiskLevel      int       `json:"risk_level"`
	MarginCallCash float64   `json:"margin_call_cash"`
}

// StockPosition is a held instrument as reported by the brokerage.
type StockPosition struct {
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	AvailableQty  int64   `json:"available_qty"`
	CostPrice     float64 `json:"cost_price"`
	Currency      string  `json:"currency"`
	LastUpdatedMs int64   `json:"last_updated_ms"`
}

// OrderRequest captures an order intent to be sent to the brokerage.
type OrderRequest struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price"`
	Quantity  int64     `json:"quantity"`
	ClientID  string    `json:"client_id,omitempty"`
	Remark    string    `json:"remark,omitempty"`
	OutsideTH bool      `json:"outside_rth,omitempty"` // allow pre/post session
}

// OrderResult returns the brokerage ack.
type OrderResult struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

// PendingOrder is an outstanding order as tracked locally.
type PendingOrder struct {
	OrderID        string      `json:"order_id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	SubmittedPrice float64     `json:"submitted_price"`
	Quantity       int64       `json:"quantity"`
	ExecutedQty    int64       `json:"executed_qty"`
	ExecutedPrice  float64     `json:"executed_price"`
	Status         OrderStatus `json:"status"`
	Remark         string      `json:"remark,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderStatusEvent is the push notification for an order state change.
// UpdatedAt carries the brokerage-side execution time and is the
// authoritative timestamp for cooldown accounting.
type OrderStatusEvent struct {
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Status      OrderStatus `json:"status"`
	ExecutedQty int64       `json:"executed_qty"`
	ExecutedPx  float64     `json:"executed_price"`
	Remark      string      `json:"remark,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Trader abstracts the brokerage trade API. Implementations are
// network-bound; every method honors the context.
type Trader interface {
	GetAccountSnapshot(ctx context.Context) (*AccountSnapshot, error)
	GetStockPositions(ctx context.Context, symbols []string) ([]StockPosition, error)
	GetPendingOrders(ctx context.Context, symbols []string) ([]PendingOrder, error)
	GetTodayOrders(ctx context.Context) ([]PendingOrder, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ReplaceOrder(ctx context.Context, orderID string, price float64, quantity int64) error
	CancelOrder(ctx context.Context, orderID string) error
}

// QuoteProvider serves last-trade prices for symbols.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (float64, error)
}
