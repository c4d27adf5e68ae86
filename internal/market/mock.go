package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"warrant-trader/internal/events"
	"warrant-trader/internal/indicators"
	"warrant-trader/pkg/cache"
)

// MockFeed generates synthetic ticks for local development. It writes
// into the same sinks as the live feed so the rest of the pipeline
// cannot tell the difference.
type MockFeed struct {
	Cache         *cache.QuoteCache
	Indicators    *indicators.Cache
	Bus           *events.Bus
	MonitorSymbol string
	StartPrice    float64
	Step          float64
	Interval      time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil || m.Cache == nil {
		log.Println("mock feed not fully configured; skipping start")
		return
	}
	price := m.StartPrice
	if price == 0 {
		price = 20000.0
	}
	if m.Step == 0 {
		m.Step = 5.0
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// simple random walk
				price += (rand.Float64()*2 - 1) * m.Step
				nowMs := time.Now().UnixMilli()
				m.Cache.Set(m.MonitorSymbol, price)
				if m.Indicators != nil {
					m.Indicators.Push(m.MonitorSymbol, indicators.Snapshot{
						TimestampMs: nowMs,
						Values:      map[string]float64{"price": price},
					})
				}
				m.Bus.Publish(events.EventPriceTick, Tick{
					Symbol: m.MonitorSymbol,
					Price:  price,
					TsMs:   nowMs,
				})
			}
		}
	}()
}
