package risk

import (
	"sync"
	"time"
)

// UnrealizedLossRecord is the open-cost view for one traded symbol.
// r1 = OpenCost is the notional paid for the open quantity, n1 =
// OpenQty the quantity still held.
type UnrealizedLossRecord struct {
	Symbol     string    `json:"symbol"`
	OpenCost   float64   `json:"open_cost"`
	OpenQty    int64     `json:"open_qty"`
	LastUpdate time.Time `json:"last_update"`
}

// Fill is one executed order feeding the ledger.
type Fill struct {
	Symbol     string
	IsBuy      bool
	Price      float64
	Quantity   int64
	ExecutedAt time.Time
}

// UnrealizedLossTracker rebuilds per-symbol open-cost records from the
// local fill ledger. Records are recomputed from scratch on every
// change rather than adjusted incrementally, so rounding drift cannot
// accumulate over a session.
type UnrealizedLossTracker struct {
	mu      sync.RWMutex
	fills   map[string][]Fill
	records map[string]UnrealizedLossRecord

	nowFn func() time.Time
}

// NewUnrealizedLossTracker builds an empty tracker.
func NewUnrealizedLossTracker() *UnrealizedLossTracker {
	return &UnrealizedLossTracker{
		fills:   make(map[string][]Fill),
		records: make(map[string]UnrealizedLossRecord),
		nowFn:   time.Now,
	}
}

// AddFill appends a fill and recomputes the symbol's record.
func (t *UnrealizedLossTracker) AddFill(f Fill) UnrealizedLossRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fills[f.Symbol] = append(t.fills[f.Symbol], f)
	rec := t.recompute(f.Symbol)
	t.records[f.Symbol] = rec
	return rec
}

// recompute walks the fill ledger: buys add cost and quantity, sells
// remove quantity at the running average cost.
func (t *UnrealizedLossTracker) recompute(symbol string) UnrealizedLossRecord {
	var cost float64
	var qty int64
	for _, f := range t.fills[symbol] {
		if f.IsBuy {
			cost += f.Price * float64(f.Quantity)
			qty += f.Quantity
			continue
		}
		if qty <= 0 {
			continue
		}
		sold := f.Quantity
		if sold > qty {
			sold = qty
		}
		cost -= cost * float64(sold) / float64(qty)
		qty -= sold
	}
	if qty <= 0 {
		cost = 0
		qty = 0
	}
	return UnrealizedLossRecord{
		Symbol:     symbol,
		OpenCost:   cost,
		OpenQty:    qty,
		LastUpdate: t.nowFn(),
	}
}

// Record returns the current record for a symbol.
func (t *UnrealizedLossTracker) Record(symbol string) (UnrealizedLossRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[symbol]
	return rec, ok
}

// Seed replaces the ledger for a symbol, used when rebuilding from the
// brokerage's order history at startup.
func (t *UnrealizedLossTracker) Seed(symbol string, fills []Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fills[symbol] = append([]Fill(nil), fills...)
	t.records[symbol] = t.recompute(symbol)
}

// Reset clears all ledgers, e.g. at the daily session roll.
func (t *UnrealizedLossTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fills = make(map[string][]Fill)
	t.records = make(map[string]UnrealizedLossRecord)
}
