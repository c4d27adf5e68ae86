package market

import (
	"context"
	"log"
	"time"

	"warrant-trader/internal/events"
	"warrant-trader/internal/indicators"
	"warrant-trader/pkg/broker"
	"warrant-trader/pkg/cache"
)

// Tick is one sampled price published on the bus.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TsMs   int64   `json:"ts_ms"`
}

// Feed polls the brokerage for quotes and fans them into the quote
// cache, the indicator history, and the event bus. The monitored
// index additionally gets an indicator snapshot so delayed signal
// verification has samples to query.
type Feed struct {
	Quotes         broker.QuoteProvider
	Cache          *cache.QuoteCache
	Indicators     *indicators.Cache
	Bus            *events.Bus
	MonitorSymbol  string
	WarrantSymbols []string
	Interval       time.Duration
}

// Start begins the polling loop. It returns immediately.
func (f *Feed) Start(ctx context.Context) {
	if f.Quotes == nil || f.Cache == nil || f.Bus == nil {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.Interval <= 0 {
		f.Interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.poll(ctx)
			}
		}
	}()
}

func (f *Feed) poll(ctx context.Context) {
	symbols := append([]string{f.MonitorSymbol}, f.WarrantSymbols...)
	for _, sym := range symbols {
		if sym == "" {
			continue
		}
		px, err := f.Quotes.GetQuote(ctx, sym)
		if err != nil {
			log.Printf("market feed: quote %s error: %v", sym, err)
			continue
		}
		f.record(sym, px)
	}
}

func (f *Feed) record(symbol string, price float64) {
	nowMs := time.Now().UnixMilli()
	f.Cache.Set(symbol, price)
	if symbol == f.MonitorSymbol && f.Indicators != nil {
		f.Indicators.Push(symbol, indicators.Snapshot{
			TimestampMs: nowMs,
			Values:      map[string]float64{"price": price},
		})
	}
	f.Bus.Publish(events.EventPriceTick, Tick{Symbol: symbol, Price: price, TsMs: nowMs})
}
