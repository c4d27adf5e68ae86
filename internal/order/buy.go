package order

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"warrant-trader/internal/events"
	"warrant-trader/internal/metrics"
	"warrant-trader/internal/risk"
	"warrant-trader/pkg/broker"
)

// BuyProcessor is the single consumer of the buy lane. Every candidate
// passes the frequency gate, the liquidation cooldown, a fresh
// account/position fetch, and the risk checker before it may spend a
// trade-API call. Any fetch failure fails closed.
type BuyProcessor struct {
	cfg       Config
	deps      Deps
	queue     *TaskQueue
	freqGate  *risk.FrequencyGate
	cooldowns *risk.CooldownTracker
}

// NewBuyProcessor wires the buy lane.
func NewBuyProcessor(cfg Config, deps Deps, queue *TaskQueue, gate *risk.FrequencyGate, cooldowns *risk.CooldownTracker) *BuyProcessor {
	return &BuyProcessor{
		cfg:       cfg,
		deps:      deps,
		queue:     queue,
		freqGate:  gate,
		cooldowns: cooldowns,
	}
}

// Queue returns the lane's task queue.
func (p *BuyProcessor) Queue() *TaskQueue { return p.queue }

// Run consumes the buy queue until the context is canceled.
func (p *BuyProcessor) Run(ctx context.Context) {
	p.queue.Drain(ctx, func(t Task) {
		p.handle(ctx, t)
	})
}

func (p *BuyProcessor) handle(ctx context.Context, t Task) {
	sig := t.Signal
	if sig == nil || !sig.Consume() {
		return
	}

	symbol := sig.Symbol
	action := string(sig.Action)
	dir := sig.Action.Direction()

	// Frequency gate. The timestamp is taken optimistically at gate
	// pass so a burst of verified signals cannot all slip through.
	if ok, wait := p.freqGate.TryPass(dir); !ok {
		reason := fmt.Sprintf("buy interval active, %.1fs remaining", wait.Seconds())
		log.Printf("buy: %s %s dropped: %s", symbol, action, reason)
		metrics.SignalsRejected.WithLabelValues(StageFreqGate).Inc()
		p.deps.recordDecision(ctx, symbol, action, StageFreqGate, false, reason)
		return
	}

	// Liquidation cooldown.
	if remaining := p.cooldowns.GetRemainingMs(symbol, dir, p.cfg.Cooldown); remaining > 0 {
		reason := fmt.Sprintf("liquidation cooldown active, %ds remaining", remaining/1000)
		log.Printf("buy: %s %s dropped: %s", symbol, action, reason)
		metrics.SignalsRejected.WithLabelValues(StageCooldown).Inc()
		p.deps.recordDecision(ctx, symbol, action, StageCooldown, false, reason)
		return
	}

	// Fresh account and positions. Fail closed: a buy is never
	// defaulted through stale or missing data.
	account, err := p.deps.Trader.GetAccountSnapshot(ctx)
	if err != nil {
		log.Printf("buy: %s account fetch failed, dropping signal: %v", symbol, err)
		metrics.SignalsRejected.WithLabelValues(StageFetch).Inc()
		p.deps.recordDecision(ctx, symbol, action, StageFetch, false, "account fetch failed: "+err.Error())
		return
	}
	positions, err := p.deps.Trader.GetStockPositions(ctx, []string{p.cfg.LongSymbol, p.cfg.ShortSymbol})
	if err != nil {
		log.Printf("buy: %s position fetch failed, dropping signal: %v", symbol, err)
		metrics.SignalsRejected.WithLabelValues(StageFetch).Inc()
		p.deps.recordDecision(ctx, symbol, action, StageFetch, false, "position fetch failed: "+err.Error())
		return
	}

	price := p.buyPrice(sig.Price, symbol)
	if price <= 0 {
		log.Printf("buy: %s no usable price, dropping signal", symbol)
		metrics.SignalsRejected.WithLabelValues(StageFetch).Inc()
		p.deps.recordDecision(ctx, symbol, action, StageFetch, false, "no usable price")
		return
	}

	qty := sig.Quantity
	if qty <= 0 {
		qty = quantityForNotional(p.cfg.BuyNotional, price, p.cfg.lotFor(symbol))
	}
	if qty <= 0 {
		log.Printf("buy: %s derived quantity is zero (notional=%.2f price=%.4f)", symbol, p.cfg.BuyNotional, price)
		p.deps.recordDecision(ctx, symbol, action, StageRisk, false, "derived quantity is zero")
		return
	}

	monitorPrice, _ := p.deps.Quotes.GetFresh(p.cfg.MonitorSymbol, p.cfg.QuoteMaxAge)
	longPrice, _ := p.deps.Quotes.GetFresh(p.cfg.LongSymbol, p.cfg.QuoteMaxAge)
	shortPrice, _ := p.deps.Quotes.GetFresh(p.cfg.ShortSymbol, p.cfg.QuoteMaxAge)

	res := p.deps.Checker.Check(risk.CheckInput{
		Signal:        sig,
		Account:       account,
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
		log.Printf("buy: %s throttle interrupted: %v", symbol, err)
		return
	}

	req := broker.OrderRequest{
		Symbol:   symbol,
		Side:     broker.SideBuy,
		Type:     p.cfg.NormalOrderType,
		Price:    price,
		Quantity: qty,
		ClientID: uuid.NewString(),
		Remark:   sig.Reason,
	}
	result, err := p.deps.Trader.SubmitOrder(ctx, req)
	p.deps.OrderCache.Invalidate()
	if err != nil {
		// Transient brokerage failure: the order is treated as not
		// submitted and the signal is not retried. The next polling
		// cycle may regenerate an equivalent one.
		log.Printf("buy: %s submit failed: %v", symbol, err)
		p.deps.recordDecision(ctx, symbol, action, StageSubmit, false, "submit failed: "+err.Error())
		if p.deps.Bus != nil {
			p.deps.Bus.Publish(events.EventOrderRejected, err.Error())
		}
		return
	}

	log.Printf("buy: submitted %s qty=%d @ %.4f order_id=%s", symbol, qty, price, result.OrderID)
	metrics.OrdersSubmitted.WithLabelValues(string(broker.SideBuy)).Inc()
	p.deps.recordDecision(ctx, symbol, action, StageSubmit, true,
		fmt.Sprintf("order %s qty=%d price=%.4f", result.OrderID, qty, price))
	if p.deps.Bus != nil {
		p.deps.Bus.Publish(events.EventOrderSubmitted, req)
	}
}

// buyPrice prefers a fresh quote over the price the signal carried.
func (p *BuyProcessor) buyPrice(signalPrice float64, symbol string) float64 {
	if quote, ok := p.deps.Quotes.GetFresh(symbol, p.cfg.QuoteMaxAge); ok && quote > 0 {
		return quote
	}
	return signalPrice
}
