package longport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"warrant-trader/pkg/broker"
)

// SubscribeOrderStatus opens the push channel and streams order status
// changes into the returned channel until the context is canceled. The
// connection is re-dialed with backoff after read failures so a blip
// on the push side never silently stops fill accounting.
func (c *Client) SubscribeOrderStatus(ctx context.Context) (<-chan broker.OrderStatusEvent, func(), error) {
	out := make(chan broker.OrderStatusEvent, 100)

	runCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
		})
	}

	conn, err := c.dialPush(runCtx)
	if err != nil {
		stop()
		return nil, nil, err
	}

	go func() {
		defer close(out)
		defer func() { conn.Close() }()
		backoff := time.Second
		for {
			if err := readPushLoop(runCtx, conn, out); err != nil {
				if runCtx.Err() != nil {
					return
				}
				log.Printf("longport push: read loop ended: %v, reconnecting in %v", err, backoff)
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			next, err := c.dialPush(runCtx)
			if err != nil {
				log.Printf("longport push: redial failed: %v", err)
				continue
			}
			conn.Close()
			conn = next
			backoff = time.Second
		}
	}()

	return out, stop, nil
}

func (c *Client) dialPush(ctx context.Context) (*websocket.Conn, error) {
	header := map[string][]string{
		"Authorization": {"Bearer " + c.cfg.AccessToken},
		"X-Api-Key":     {c.cfg.AppKey},
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.PushURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	sub := map[string]any{"op": "subscribe", "topics": []string{"private.order"}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe order topic: %w", err)
	}
	return conn, nil
}

func readPushLoop(ctx context.Context, conn *websocket.Conn, out chan<- broker.OrderStatusEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, ok, err := parsePushMessage(msg)
		if err != nil {
			log.Printf("longport push: parse error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pushEnvelope wraps every push frame; only order events carry data we
// care about.
type pushEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type pushOrder struct {
	OrderID       string `json:"order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executed_quantity"`
	ExecutedPrice string `json:"executed_price"`
	Remark        string `json:"remark"`
	UpdatedAtSec  string `json:"updated_at"`
}

func parsePushMessage(msg []byte) (broker.OrderStatusEvent, bool, error) {
	var env pushEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return broker.OrderStatusEvent{}, false, err
	}
	if env.Topic != "private.order" {
		return broker.OrderStatusEvent{}, false, nil
	}
	var o pushOrder
	if err := json.Unmarshal(env.Data, &o); err != nil {
		return broker.OrderStatusEvent{}, false, err
	}
	updated := parseInt(o.UpdatedAtSec)
	return broker.OrderStatusEvent{
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        broker.Side(o.Side),
		Status:      normalizeStatus(o.Status),
		ExecutedQty: parseInt(o.ExecutedQty),
		ExecutedPx:  parseFloat(o.ExecutedPrice),
		Remark:      o.Remark,
		UpdatedAt:   time.Unix(updated, 0),
	}, true, nil
}
