package strategy

import (
	"context"
	"fmt"
	"log"
	"time"

	"warrant-trader/internal/market"
	"warrant-trader/internal/signal"
)

// Sink receives signals the engine produced. In production this is the
// verifier's Add method.
type Sink func(sig *signal.Signal, monitorSymbol string) error

// Engine runs strategies against the monitored index price stream and
// binds their proposals to the configured warrant symbols.
type Engine struct {
	strategies    []Strategy
	monitorSymbol string
	longSymbol    string
	shortSymbol   string
	sink          Sink
	nowFn         func() time.Time
}

func NewEngine(monitorSymbol, longSymbol, shortSymbol string, sink Sink) *Engine {
	return &Engine{
		monitorSymbol: monitorSymbol,
		longSymbol:    longSymbol,
		shortSymbol:   shortSymbol,
		sink:          sink,
		nowFn:         time.Now,
	}
}

// Add registers a strategy implementation.
func (e *Engine) Add(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Start consumes the price tick stream until the context is canceled
// or the stream closes.
func (e *Engine) Start(ctx context.Context, ticks <-chan any) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ticks:
				if !ok {
					return
				}
				tick, isTick := msg.(market.Tick)
				if !isTick || tick.Symbol != e.monitorSymbol {
					continue
				}
				e.onTick(tick)
			}
		}
	}()
}

func (e *Engine) onTick(tick market.Tick) {
	for _, s := range e.strategies {
		for _, prop := range s.OnTick(tick.Price) {
			e.emit(s, prop, tick)
		}
	}
}

// emit binds a proposal to the warrant on its side of the book and
// hands it to the sink with the index reading attached.
func (e *Engine) emit(s Strategy, prop Proposal, tick market.Tick) {
	symbol := e.longSymbol
	if prop.Action.Direction() == signal.DirectionShort {
		symbol = e.shortSymbol
	}

	sig := signal.New(symbol, prop.Action, fmt.Sprintf("%s: %s", s.Name(), prop.Reason))
	sig.TriggerTime = tick.TsMs
	sig.Indicators = map[string]float64{"price": tick.Price}

	if e.sink == nil {
		return
	}
	if err := e.sink(sig, e.monitorSymbol); err != nil {
		log.Printf("strategy %s: signal %s %s not accepted: %v", s.ID(), symbol, prop.Action, err)
	}
}
