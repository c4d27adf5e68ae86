package risk

import (
	"warrant-trader/internal/signal"
	"warrant-trader/pkg/broker"
)

// WarrantKind classifies a leveraged warrant by its payoff direction.
type WarrantKind string

const (
	WarrantBull WarrantKind = "BULL"
	WarrantBear WarrantKind = "BEAR"
)

// WarrantInfo carries the knock-out parameters for a traded warrant.
// CallPrice <= 0 means the instrument is not a warrant (or the call
// price is unknown) and the proximity gate does not apply.
type WarrantInfo struct {
	Symbol    string      `json:"symbol"`
	Kind      WarrantKind `json:"kind"`
	CallPrice float64     `json:"call_price"`
}

// CheckResult is the outcome of one risk evaluation. Transient; never
// persisted beyond the audit trail.
type CheckResult struct {
	Allowed bool         `json:"allowed"`
	Gate    string       `json:"gate,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Warrant *WarrantInfo `json:"warrant,omitempty"`
}

func allow() CheckResult {
	return CheckResult{Allowed: true}
}

func reject(gate, reason string) CheckResult {
	return CheckResult{Allowed: false, Gate: gate, Reason: reason}
}

// Config holds the risk ceilings. Loaded from the yaml trading config.
type Config struct {
	// Minimum distance (percent) between the monitored index and a
	// bull warrant's call price before new long exposure is allowed.
	MinBullDistancePct float64 `yaml:"min_bull_distance_pct"`
	// Maximum (negative) distance for bear warrants; the sign-flipped
	// counterpart of MinBullDistancePct.
	MaxBearDistancePct float64 `yaml:"max_bear_distance_pct"`
	// Per-symbol position notional ceiling.
	MaxPositionNotional float64 `yaml:"max_position_notional"`
	// Daily loss ceiling used by the unrealized-loss-before-buy gate.
	MaxDailyLoss float64 `yaml:"max_daily_loss"`
}

// CheckInput bundles everything one evaluation needs. Prices are the
// last trades for the monitored index and the two traded warrants.
type CheckInput struct {
	Signal        *signal.Signal
	Account       *broker.AccountSnapshot
	Positions     []broker.StockPosition
	OrderNotional float64
	MonitorPrice  float64
	LongPrice     float64
	ShortPrice    float64
	Warrant       *WarrantInfo
}
