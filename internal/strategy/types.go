package strategy

import "warrant-trader/internal/signal"

// Strategy watches the monitored index and proposes actions.
type Strategy interface {
	// ID returns the unique instance ID
	ID() string
	// Name returns the human-readable name
	Name() string
	// OnTick processes a new index price and returns zero or more
	// proposed actions with a reason attached.
	OnTick(price float64) []Proposal
}

// Proposal is a raw strategy output before it is bound to a warrant
// symbol and handed to verification.
type Proposal struct {
	Action signal.Action
	Reason string
}
