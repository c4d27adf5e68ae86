package risk

import (
	"fmt"
	"log"
	"math"

	"warrant-trader/internal/signal"
)

// Gate names, used in rejection reasons and the audit trail.
const (
	GateWarrantProximity = "warrant_proximity"
	GatePositionNotional = "position_notional"
	GateUnrealizedLoss   = "unrealized_loss"
	GateAccountValidity  = "account_validity"
)

// Checker runs the risk sub-checks in sequence, short-circuiting on
// the first failure. Sub-checks decide their own applicability: sells
// bypass the account, unrealized-loss and position-notional gates so a
// protective liquidation is never blocked by stale account data or by
// the cap it is shrinking the position back under.
type Checker struct {
	cfg    Config
	losses *UnrealizedLossTracker
}

// NewChecker builds a checker over the given ceilings and loss ledger.
func NewChecker(cfg Config, losses *UnrealizedLossTracker) *Checker {
	return &Checker{cfg: cfg, losses: losses}
}

// Check evaluates one candidate order. HOLD signals and nil signals
// pass trivially.
func (c *Checker) Check(in CheckInput) CheckResult {
	if in.Signal == nil || in.Signal.Action == signal.ActionHold {
		return allow()
	}

	checks := []func(CheckInput) CheckResult{
		c.checkAccountValidity,
		c.checkWarrantProximity,
		c.checkPositionNotional,
		c.checkUnrealizedLoss,
	}
	for _, fn := range checks {
		if res := fn(in); !res.Allowed {
			log.Printf("risk: %s %s rejected by %s: %s",
				in.Signal.Symbol, in.Signal.Action, res.Gate, res.Reason)
			return res
		}
	}
	return allow()
}

// checkAccountValidity requires a usable account snapshot for buys.
// Absence is a hard reject: defaulting through a failed account fetch
// risks an uncontrolled position.
func (c *Checker) checkAccountValidity(in CheckInput) CheckResult {
	if !in.Signal.Action.IsBuy() {
		return allow()
	}
	if in.Account == nil {
		return reject(GateAccountValidity, "account snapshot unavailable")
	}
	if math.IsNaN(in.Account.BuyPower) || math.IsInf(in.Account.BuyPower, 0) {
		return reject(GateAccountValidity,
			fmt.Sprintf("account buy power not finite: %v", in.Account.BuyPower))
	}
	return allow()
}

// checkWarrantProximity blocks buys too close to the knock-out price.
// distance% = (monitor - call) / call * 100. Bull warrants need the
// index comfortably above the call price; bear warrants comfortably
// below (negative distance under the sign-flipped threshold).
func (c *Checker) checkWarrantProximity(in CheckInput) CheckResult {
	if !in.Signal.Action.IsBuy() {
		return allow()
	}
	w := in.Warrant
	if w == nil || w.CallPrice <= 0 {
		// Not a warrant, or call price unknown: gate does not apply.
		return allow()
	}
	if in.MonitorPrice <= 0 {
		return reject(GateWarrantProximity, "monitor price unavailable")
	}

	distance := (in.MonitorPrice - w.CallPrice) / w.CallPrice * 100

	switch w.Kind {
	case WarrantBull:
		if distance < c.cfg.MinBullDistancePct {
			return CheckResult{
				Allowed: false,
				Gate:    GateWarrantProximity,
				Reason: fmt.Sprintf("bull distance %.4f%% below minimum %.4f%% (monitor=%.2f call=%.2f)",
					distance, c.cfg.MinBullDistancePct, in.MonitorPrice, w.CallPrice),
				Warrant: w,
			}
		}
	case WarrantBear:
		if distance > c.cfg.MaxBearDistancePct {
			return CheckResult{
				Allowed: false,
				Gate:    GateWarrantProximity,
				Reason: fmt.Sprintf("bear distance %.4f%% above maximum %.4f%% (monitor=%.2f call=%.2f)",
					distance, c.cfg.MaxBearDistancePct, in.MonitorPrice, w.CallPrice),
				Warrant: w,
			}
		}
	}
	return allow()
}

// checkPositionNotional caps the per-symbol position value for orders
// that increase exposure. Sells reduce exposure, so a full liquidation
// of a cap-sized position must never be blocked here. The reference
// price for the existing position prefers cost price over the live
// quote.
func (c *Checker) checkPositionNotional(in CheckInput) CheckResult {
	if !in.Signal.Action.IsBuy() {
		return allow()
	}
	if c.cfg.MaxPositionNotional <= 0 || in.OrderNotional <= 0 {
		return allow()
	}
	if in.OrderNotional > c.cfg.MaxPositionNotional {
		return reject(GatePositionNotional,
			fmt.Sprintf("order notional %.2f exceeds cap %.2f",
				in.OrderNotional, c.cfg.MaxPositionNotional))
	}

	pos, ok := findPosition(in, in.Signal.Symbol)
	if !ok || pos.Quantity <= 0 {
		return allow()
	}

	refPrice := pos.CostPrice
	if refPrice <= 0 {
		refPrice = quoteFor(in)
	}
	current := float64(pos.Quantity) * refPrice
	if total := current + in.OrderNotional; total > c.cfg.MaxPositionNotional {
		return reject(GatePositionNotional,
			fmt.Sprintf("position %.2f + order %.2f = %.2f exceeds cap %.2f",
				current, in.OrderNotional, total, c.cfg.MaxPositionNotional))
	}
	return allow()
}

// checkUnrealizedLoss blocks new buys once the open position's paper
// loss reaches the daily loss ceiling.
func (c *Checker) checkUnrealizedLoss(in CheckInput) CheckResult {
	if !in.Signal.Action.IsBuy() || c.cfg.MaxDailyLoss <= 0 || c.losses == nil {
		return allow()
	}

	rec, ok := c.losses.Record(in.Signal.Symbol)
	if !ok || rec.OpenQty <= 0 {
		return allow()
	}

	price := quoteFor(in)
	if price <= 0 {
		return allow()
	}

	loss := price*float64(rec.OpenQty) - rec.OpenCost
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		// Never coerce a broken number into a trading decision.
		return reject(GateUnrealizedLoss,
			fmt.Sprintf("computed loss not finite (price=%.4f qty=%d cost=%.2f)",
				price, rec.OpenQty, rec.OpenCost))
	}
	if loss <= -c.cfg.MaxDailyLoss {
		return reject(GateUnrealizedLoss,
			fmt.Sprintf("unrealized loss %.2f breaches ceiling %.2f (price=%.4f qty=%d cost=%.2f)",
				loss, c.cfg.MaxDailyLoss, price, rec.OpenQty, rec.OpenCost))
	}
	return allow()
}

func quoteFor(in CheckInput) float64 {
	switch in.Signal.Action.Direction() {
	case signal.DirectionLong:
		return in.LongPrice
	default:
		return in.ShortPrice
	}
}

func findPosition(in CheckInput, symbol string) (p pos, ok bool) {
	for _, sp := range in.Positions {
		if sp.Symbol == symbol {
			return pos{Quantity: sp.Quantity, CostPrice: sp.CostPrice}, true
		}
	}
	return pos{}, false
}

type pos struct {
	Quantity  int64
	CostPrice float64
}
