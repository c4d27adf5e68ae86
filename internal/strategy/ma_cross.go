package strategy

import (
	"fmt"

	"warrant-trader/internal/signal"
)

// MACrossStrategy implements a simple moving average crossover on the
// monitored index. A golden cross (fast MA crossing above slow MA)
// proposes opening long exposure and closing short exposure; a death
// cross proposes the mirror image.
type MACrossStrategy struct {
	id         string
	fastPeriod int // e.g., 10
	slowPeriod int // e.g., 30

	fastMA     float64
	slowMA     float64
	prices     []float64
	prevAction signal.Action // track last action to avoid repeats
}

// NewMACrossStrategy creates a new MA cross strategy.
func NewMACrossStrategy(id string, fastPeriod, slowPeriod int) *MACrossStrategy {
	return &MACrossStrategy{
		id:         id,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		prices:     make([]float64, 0, slowPeriod),
		prevAction: signal.ActionHold,
	}
}

func (s *MACrossStrategy) ID() string {
	return s.id
}

func (s *MACrossStrategy) Name() string {
	return fmt.Sprintf("MA_Cross_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *MACrossStrategy) OnTick(price float64) []Proposal {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.slowPeriod {
		s.prices = s.prices[1:]
	}

	// Need enough data for slow MA
	if len(s.prices) < s.slowPeriod {
		return nil
	}

	oldFast := s.fastMA
	oldSlow := s.slowMA
	s.fastMA = calculateMA(s.prices, s.fastPeriod)
	s.slowMA = calculateMA(s.prices, s.slowPeriod)

	// Golden cross: fast MA crosses above slow MA
	if oldFast <= oldSlow && s.fastMA > s.slowMA && s.prevAction != signal.ActionBuyCall {
		s.prevAction = signal.ActionBuyCall
		reason := fmt.Sprintf("golden cross: MA%d(%.2f) > MA%d(%.2f)", s.fastPeriod, s.fastMA, s.slowPeriod, s.slowMA)
		return []Proposal{
			{Action: signal.ActionBuyCall, Reason: reason},
			{Action: signal.ActionSellPut, Reason: reason},
		}
	}

	// Death cross: fast MA crosses below slow MA
	if oldFast >= oldSlow && s.fastMA < s.slowMA && s.prevAction != signal.ActionBuyPut {
		s.prevAction = signal.ActionBuyPut
		reason := fmt.Sprintf("death cross: MA%d(%.2f) < MA%d(%.2f)", s.fastPeriod, s.fastMA, s.slowPeriod, s.slowMA)
		return []Proposal{
			{Action: signal.ActionBuyPut, Reason: reason},
			{Action: signal.ActionSellCall, Reason: reason},
		}
	}

	return nil
}

func calculateMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}
