package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"warrant-trader/internal/events"
	"warrant-trader/internal/risk"
	"warrant-trader/internal/signal"
)

// LossGuard watches open warrant exposure and forces a protective
// liquidation through the sell lane when the unrealized loss on a
// symbol breaches the daily ceiling. The resulting fill arms the
// cooldown tracker, which blocks re-entry on that symbol/direction.
type LossGuard struct {
	cfg       Config
	losses    *risk.UnrealizedLossTracker
	riskCfg   risk.Config
	sellQueue *TaskQueue
	quotes    quoteReader
	bus       *events.Bus
	interval  time.Duration

	// last protective enqueue per symbol. The guard re-fires after
	// retryAfter while the position is still open and breached, so a
	// sell lost downstream (submit error, lane drop) is retried
	// instead of leaving the breach unattended. Cleared when the
	// position goes flat so a re-entered position is guarded again.
	fired      map[string]time.Time
	retryAfter time.Duration
	nowFn      func() time.Time
}

type quoteReader interface {
	GetFresh(symbol string, maxAge time.Duration) (float64, bool)
}

// NewLossGuard wires the protective liquidation watcher.
func NewLossGuard(cfg Config, riskCfg risk.Config, losses *risk.UnrealizedLossTracker, sellQueue *TaskQueue, quotes quoteReader, bus *events.Bus, interval time.Duration) *LossGuard {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &LossGuard{
		cfg:        cfg,
		losses:     losses,
		riskCfg:    riskCfg,
		sellQueue:  sellQueue,
		quotes:     quotes,
		bus:        bus,
		interval:   interval,
		fired:      make(map[string]time.Time),
		retryAfter: 30 * time.Second,
		nowFn:      time.Now,
	}
}

// Run checks exposure until the context is canceled.
func (g *LossGuard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.check(g.cfg.LongSymbol, signal.ActionSellCall)
			g.check(g.cfg.ShortSymbol, signal.ActionSellPut)
		}
	}
}

func (g *LossGuard) check(symbol string, action signal.Action) {
	if symbol == "" || g.riskCfg.MaxDailyLoss <= 0 {
		return
	}
	rec, ok := g.losses.Record(symbol)
	if !ok || rec.OpenQty <= 0 {
		delete(g.fired, symbol)
		return
	}
	px, fresh := g.quotes.GetFresh(symbol, g.cfg.QuoteMaxAge)
	if !fresh || px <= 0 {
		return
	}

	loss := px*float64(rec.OpenQty) - rec.OpenCost
	if loss > -g.riskCfg.MaxDailyLoss {
		return
	}
	if last, ok := g.fired[symbol]; ok && g.nowFn().Sub(last) < g.retryAfter {
		return
	}

	reason := fmt.Sprintf("unrealized loss %.2f breached ceiling %.2f", loss, g.riskCfg.MaxDailyLoss)
	sig := signal.New(symbol, action, reason)
	sig.Price = px
	if !g.sellQueue.Enqueue(Task{Signal: sig, MonitorSymbol: g.cfg.MonitorSymbol, Protective: true}) {
		log.Printf("loss guard: %s sell lane saturated, will retry", symbol)
		sig.Release()
		return
	}
	g.fired[symbol] = g.nowFn()
	log.Printf("loss guard: %s protective liquidation queued: %s", symbol, reason)
	if g.bus != nil {
		g.bus.Publish(events.EventRiskAlert, reason)
	}
}
