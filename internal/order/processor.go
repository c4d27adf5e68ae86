package order

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"warrant-trader/internal/audit"
	"warrant-trader/internal/events"
	"warrant-trader/internal/risk"
	"warrant-trader/pkg/broker"
	"warrant-trader/pkg/cache"
)

// Stage names used in logs and the audit trail.
const (
	StageFreqGate = "freq_gate"
	StageCooldown = "cooldown"
	StageFetch    = "data_fetch"
	StageRisk     = "risk_check"
	StageSubmit   = "submit"
)

// Config holds the execution-side parameters shared by both lanes.
type Config struct {
	MonitorSymbol string
	LongSymbol    string
	ShortSymbol   string
	LongLot       int64
	ShortLot      int64

	// Target notional for a buy order when the signal does not carry
	// an explicit quantity.
	BuyNotional float64

	NormalOrderType     broker.OrderType
	ProtectiveOrderType broker.OrderType

	// Quotes older than this read as missing.
	QuoteMaxAge time.Duration

	Cooldown risk.CooldownConfig
}

// Deps bundles the collaborators a processor drives.
type Deps struct {
	Trader     broker.Trader
	Limiter    *broker.RateLimiter
	OrderCache *broker.PendingOrderCache
	Checker    *risk.Checker
	Quotes     *cache.QuoteCache
	Bus        *events.Bus
	Audit      *audit.Trail

	// WarrantFor resolves knock-out parameters for a traded symbol;
	// nil (or a nil result) means "not a warrant".
	WarrantFor func(symbol string) *risk.WarrantInfo
}

func (d Deps) warrant(symbol string) *risk.WarrantInfo {
	if d.WarrantFor == nil {
		return nil
	}
	return d.WarrantFor(symbol)
}

func (d Deps) recordDecision(ctx context.Context, symbol, action, stage string, allowed bool, reason string) {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Record(ctx, audit.Decision{
		Symbol:  symbol,
		Action:  action,
		Stage:   stage,
		Allowed: allowed,
		Reason:  reason,
	}); err != nil {
		log.Printf("audit: record failed: %v", err)
	}
}

func (c Config) lotFor(symbol string) int64 {
	switch symbol {
	case c.ShortSymbol:
		return c.ShortLot
	default:
		return c.LongLot
	}
}

// roundToLot floors a quantity to a whole number of lots.
func roundToLot(qty, lot int64) int64 {
	if lot <= 0 {
		return qty
	}
	return qty / lot * lot
}

// quantityForNotional derives a lot-rounded buy quantity from a target
// notional. Uses decimal division so sub-cent warrant prices never
// over-buy through float truncation.
func quantityForNotional(notional, price float64, lot int64) int64 {
	if price <= 0 || notional <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(notional).
		Div(decimal.NewFromFloat(price)).
		IntPart()
	return roundToLot(qty, lot)
}
