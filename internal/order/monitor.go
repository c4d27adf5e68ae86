package order

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"warrant-trader/internal/events"
	"warrant-trader/internal/metrics"
	"warrant-trader/internal/risk"
	"warrant-trader/internal/signal"
	"warrant-trader/pkg/broker"
)

// ProtectiveRemark tags protective-liquidation orders so their fills
// can be told apart on the push channel and in the order history.
const ProtectiveRemark = "protective-liquidation"

// minTick is the smallest price improvement worth a replace call.
var minTick = decimal.NewFromFloat(0.001)

// Monitor supervises outstanding buy orders, chasing the market down
// with price replaces, and feeds push fills back into the loss ledger
// and the cooldown tracker. It idles once no buy orders remain and is
// re-armed by the next submission.
type Monitor struct {
	cfg       Config
	deps      Deps
	losses    *risk.UnrealizedLossTracker
	cooldowns *risk.CooldownTracker
	interval  time.Duration

	active atomic.Bool

	mu        sync.Mutex
	replacing map[string]bool  // order IDs with a replace in flight
	filled    map[string]int64 // order ID -> highest executed qty seen
}

// NewMonitor builds an order monitor polling at interval.
func NewMonitor(cfg Config, deps Deps, losses *risk.UnrealizedLossTracker, cooldowns *risk.CooldownTracker, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		cfg:       cfg,
		deps:      deps,
		losses:    losses,
		cooldowns: cooldowns,
		interval:  interval,
		replacing: make(map[string]bool),
		filled:    make(map[string]int64),
	}
}

// Arm wakes the poll loop; called after every submission.
func (m *Monitor) Arm() {
	m.active.Store(true)
}

// Run polls until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.active.Load() {
				continue
			}
			m.cycle(ctx)
		}
	}
}

// cycle walks the outstanding buy orders once. A market trading below
// the resting limit by at least one tick triggers a replace down to
// the market price, reusing the already-fetched order object rather
// than spending another lookup call.
func (m *Monitor) cycle(ctx context.Context) {
	symbols := []string{m.cfg.LongSymbol, m.cfg.ShortSymbol}

	orders, ok := m.deps.OrderCache.Get(symbols)
	if !ok {
		fetched, err := m.deps.Trader.GetPendingOrders(ctx, symbols)
		if err != nil {
			log.Printf("monitor: pending order fetch failed: %v", err)
			return
		}
		m.deps.OrderCache.Put(symbols, fetched)
		orders = fetched
	}

	outstanding := 0
	for _, o := range orders {
		if o.Side != broker.SideBuy || o.Status.Terminal() {
			continue
		}
		// A replace in flight is still a live order; it keeps the
		// monitor awake but is not chased until the broker settles it.
		outstanding++
		if o.Status == broker.StatusReplacing {
			continue
		}

		m.mu.Lock()
		inFlight := m.replacing[o.OrderID]
		m.mu.Unlock()
		if inFlight {
			continue
		}

		market, fresh := m.deps.Quotes.GetFresh(o.Symbol, m.cfg.QuoteMaxAge)
		if !fresh || market <= 0 {
			continue
		}

		resting := decimal.NewFromFloat(o.SubmittedPrice)
		current := decimal.NewFromFloat(market)
		if resting.Sub(current).LessThan(minTick) {
			continue
		}

		m.mu.Lock()
		m.replacing[o.OrderID] = true
		m.mu.Unlock()

		remaining := o.Quantity - o.ExecutedQty
		if err := m.deps.Trader.ReplaceOrder(ctx, o.OrderID, market, remaining); err != nil {
			log.Printf("monitor: replace %s to %.4f failed: %v", o.OrderID, market, err)
		} else {
			log.Printf("monitor: replaced %s %s %.4f -> %.4f", o.OrderID, o.Symbol, o.SubmittedPrice, market)
			metrics.OrdersReplaced.Inc()
			if m.deps.Bus != nil {
				m.deps.Bus.Publish(events.EventOrderReplaced, o.OrderID)
			}
		}
		m.deps.OrderCache.Invalidate()

		m.mu.Lock()
		delete(m.replacing, o.OrderID)
		m.mu.Unlock()
	}

	if outstanding == 0 {
		m.active.Store(false)
		log.Printf("monitor: no outstanding buy orders, going idle")
	}
}

// HandleStatusEvent ingests one push notification. Fill timestamps use
// the order's own update time, not the receipt time, so cooldown
// windows stay accurate under network delay. Push delivery is
// at-least-once and executed quantities are cumulative, so only the
// increase over the highest quantity already seen for the order is
// ledgered; a redelivered event carries no increase and is a no-op.
func (m *Monitor) HandleStatusEvent(ev broker.OrderStatusEvent) {
	m.deps.OrderCache.Invalidate()

	if ev.Status != broker.StatusFilled && ev.Status != broker.StatusPartialFilled {
		return
	}

	delta := m.fillDelta(ev.OrderID, ev.ExecutedQty)
	if delta <= 0 {
		return
	}

	executedAt := ev.UpdatedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	switch ev.Side {
	case broker.SideBuy:
		rec := m.losses.AddFill(risk.Fill{
			Symbol:     ev.Symbol,
			IsBuy:      true,
			Price:      ev.ExecutedPx,
			Quantity:   delta,
			ExecutedAt: executedAt,
		})
		log.Printf("monitor: buy fill %s qty=%d @ %.4f (open cost=%.2f qty=%d)",
			ev.Symbol, delta, ev.ExecutedPx, rec.OpenCost, rec.OpenQty)
		metrics.OrdersFilled.WithLabelValues("BUY").Inc()
	case broker.SideSell:
		m.losses.AddFill(risk.Fill{
			Symbol:     ev.Symbol,
			IsBuy:      false,
			Price:      ev.ExecutedPx,
			Quantity:   delta,
			ExecutedAt: executedAt,
		})
		metrics.OrdersFilled.WithLabelValues("SELL").Inc()
		if strings.HasPrefix(ev.Remark, ProtectiveRemark) {
			dir := m.directionFor(ev.Symbol)
			m.cooldowns.Record(ev.Symbol, dir, executedAt.UnixMilli())
			if m.deps.Bus != nil {
				m.deps.Bus.Publish(events.EventCooldownArmed, ev.Symbol)
			}
		}
	}

	if ev.Status == broker.StatusFilled && m.deps.Bus != nil {
		m.deps.Bus.Publish(events.EventOrderFilled, ev)
	}
}

// fillDelta returns how much of executed has not been ledgered yet for
// the order, advancing the high-water mark when it grows.
func (m *Monitor) fillDelta(orderID string, executed int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.filled[orderID]
	if executed <= prev {
		return 0
	}
	m.filled[orderID] = executed
	return executed - prev
}

func (m *Monitor) directionFor(symbol string) signal.Direction {
	if symbol == m.cfg.ShortSymbol {
		return signal.DirectionShort
	}
	return signal.DirectionLong
}
