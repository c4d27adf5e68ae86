package order

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"warrant-trader/internal/events"
	"warrant-trader/internal/metrics"
	"warrant-trader/internal/risk"
	"warrant-trader/pkg/broker"
)

// SellProcessor is the single consumer of the sell lane. Sells are
// protective by nature, so data staleness fails open: a position fetch
// failure falls back to the last cached positions instead of blocking
// the liquidation.
type SellProcessor struct {
	cfg   Config
	deps  Deps
	queue *TaskQueue

	mu            sync.Mutex
	lastPositions []broker.StockPosition
}

// NewSellProcessor wires the sell lane.
func NewSellProcessor(cfg Config, deps Deps, queue *TaskQueue) *SellProcessor {
	return &SellProcessor{cfg: cfg, deps: deps, queue: queue}
}

// Queue returns the lane's task queue.
func (p *SellProcessor) Queue() *TaskQueue { return p.queue }

// Run consumes the sell queue until the context is canceled.
func (p *SellProcessor) Run(ctx context.Context) {
	p.queue.Drain(ctx, func(t Task) {
		p.handle(ctx, t)
	})
}

func (p *SellProcessor) handle(ctx context.Context, t Task) {
	sig := t.Signal
	if sig == nil || !sig.Consume() {
		return
	}

	symbol := sig.Symbol
	action := string(sig.Action)

	positions := p.fetchPositions(ctx)

	qty := p.sellQuantity(positions, symbol)
	if qty <= 0 {
		log.Printf("sell: %s %s dropped: no position to close", symbol, action)
		p.deps.recordDecision(ctx, symbol, action, StageRisk, false, "no position to close")
		return
	}
	sig.Quantity = qty

	price := p.sellPrice(sig.Price, symbol)

	monitorPrice, _ := p.deps.Quotes.GetFresh(p.cfg.MonitorSymbol, p.cfg.QuoteMaxAge)
	longPrice, _ := p.deps.Quotes.GetFresh(p.cfg.LongSymbol, p.cfg.QuoteMaxAge)
	shortPrice, _ := p.deps.Quotes.GetFresh(p.cfg.ShortSymbol, p.cfg.QuoteMaxAge)

	// Sells still pass through the composite checker; the account and
	// unrealized-loss gates step aside internally for sell actions.
	res := p.deps.Checker.Check(risk.CheckInput{
		Signal:        sig,
		Positions:     positions,
		OrderNotional: price * float64(qty),
		MonitorPrice:  monitorPrice,
		LongPrice:     longPrice,
		ShortPrice:    shortPrice,
		Warrant:       p.deps.warrant(symbol),
	})
	if !res.Allowed {
		metrics.SignalsRejected.WithLabelValues(res.Gate).Inc()
		p.deps.recordDecision(ctx, symbol, action, res.Gate, false, res.Reason)
		return
	}

	if err := p.deps.Limiter.Throttle(ctx); err != nil {
		log.Printf("sell: %s throttle interrupted: %v", symbol, err)
		return
	}

	orderType := p.cfg.NormalOrderType
	remark := sig.Reason
	if t.Protective {
		orderType = p.cfg.ProtectiveOrderType
		remark = ProtectiveRemark + ": " + sig.Reason
	}
	req := broker.OrderRequest{
		Symbol:   symbol,
		Side:     broker.SideSell,
		Type:     orderType,
		Price:    price,
		Quantity: qty,
		ClientID: uuid.NewString(),
		Remark:   remark,
	}
	result, err := p.deps.Trader.SubmitOrder(ctx, req)
	p.deps.OrderCache.Invalidate()
	if err != nil {
		log.Printf("sell: %s submit failed: %v", symbol, err)
		p.deps.recordDecision(ctx, symbol, action, StageSubmit, false, "submit failed: "+err.Error())
		if p.deps.Bus != nil {
			p.deps.Bus.Publish(events.EventOrderRejected, err.Error())
		}
		return
	}

	log.Printf("sell: submitted %s qty=%d @ %.4f protective=%v order_id=%s",
		symbol, qty, price, t.Protective, result.OrderID)
	metrics.OrdersSubmitted.WithLabelValues(string(broker.SideSell)).Inc()
	p.deps.recordDecision(ctx, symbol, action, StageSubmit, true,
		fmt.Sprintf("order %s qty=%d price=%.4f protective=%v", result.OrderID, qty, price, t.Protective))
	if p.deps.Bus != nil {
		p.deps.Bus.Publish(events.EventOrderSubmitted, req)
	}
}

// fetchPositions returns fresh positions, falling back to the last
// known snapshot when the brokerage call fails.
func (p *SellProcessor) fetchPositions(ctx context.Context) []broker.StockPosition {
	positions, err := p.deps.Trader.GetStockPositions(ctx, []string{p.cfg.LongSymbol, p.cfg.ShortSymbol})
	if err != nil {
		p.mu.Lock()
		cached := p.lastPositions
		p.mu.Unlock()
		log.Printf("sell: position fetch failed, using cached %d positions: %v", len(cached), err)
		return cached
	}
	p.mu.Lock()
	p.lastPositions = positions
	p.mu.Unlock()
	return positions
}

// sellQuantity is the available holding floored to whole lots.
func (p *SellProcessor) sellQuantity(positions []broker.StockPosition, symbol string) int64 {
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return roundToLot(pos.AvailableQty, p.cfg.lotFor(symbol))
		}
	}
	return 0
}

func (p *SellProcessor) sellPrice(signalPrice float64, symbol string) float64 {
	if quote, ok := p.deps.Quotes.GetFresh(symbol, p.cfg.QuoteMaxAge); ok && quote > 0 {
		return quote
	}
	return signalPrice
}
