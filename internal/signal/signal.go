package signal

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Action enumerates what the strategy wants done.
type Action string

const (
	ActionBuyCall  Action = "BUYCALL"
	ActionSellCall Action = "SELLCALL"
	ActionBuyPut   Action = "BUYPUT"
	ActionSellPut  Action = "SELLPUT"
	ActionHold     Action = "HOLD"
)

// Direction of the position a signal concerns.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// IsBuy reports whether the action opens or adds to a position.
func (a Action) IsBuy() bool {
	return a == ActionBuyCall || a == ActionBuyPut
}

// IsSell reports whether the action reduces or closes a position.
func (a Action) IsSell() bool {
	return a == ActionSellCall || a == ActionSellPut
}

// IsBullish reports whether the action bets on (or exits against) a
// rising underlying: buying a bull warrant or closing a bear one.
func (a Action) IsBullish() bool {
	return a == ActionBuyCall || a == ActionSellPut
}

// Direction maps the action onto the side of the book it touches.
// CALL actions operate on the long lane, PUT actions on the short lane.
func (a Action) Direction() Direction {
	switch a {
	case ActionBuyCall, ActionSellCall:
		return DirectionLong
	default:
		return DirectionShort
	}
}

// Signal is a trading intent produced by the strategy layer.
// A signal has exactly one owner at any time (verifier, queue, or
// processor); Consume marks the ownership hand-off so that a lost
// cancellation race can never double-process it.
type Signal struct {
	Symbol      string             `json:"symbol"`
	Action      Action             `json:"action"`
	Reason      string             `json:"reason"`
	Price       float64            `json:"price,omitempty"`
	LotSize     int64              `json:"lot_size,omitempty"`
	Quantity    int64              `json:"quantity,omitempty"`
	TriggerTime int64              `json:"trigger_time"` // unix ms
	Indicators  map[string]float64 `json:"indicators,omitempty"`

	consumed atomic.Bool
}

// New builds a signal stamped with the current time.
func New(symbol string, action Action, reason string) *Signal {
	return &Signal{
		Symbol:      symbol,
		Action:      action,
		Reason:      reason,
		TriggerTime: time.Now().UnixMilli(),
	}
}

// Identity uniquely keys a signal for deduplication.
func (s *Signal) Identity() string {
	return fmt.Sprintf("%s|%s|%d", s.Symbol, s.Action, s.TriggerTime)
}

// Consume claims the signal for processing. It returns false when the
// signal was already consumed or released by another stage.
func (s *Signal) Consume() bool {
	return s.consumed.CompareAndSwap(false, true)
}

// Release frees the signal without processing it. Idempotent.
func (s *Signal) Release() {
	s.consumed.Store(true)
}

// Consumed reports whether the signal has been claimed or released.
func (s *Signal) Consumed() bool {
	return s.consumed.Load()
}
