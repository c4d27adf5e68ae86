package strategy

import (
	"fmt"

	"warrant-trader/internal/signal"
)

// RSIStrategy implements RSI (Relative Strength Index) overbought and
// oversold detection on the monitored index.
// Oversold proposes long exposure; overbought proposes short exposure.
type RSIStrategy struct {
	id                  string
	period              int     // RSI period (typically 14)
	oversoldThreshold   float64 // e.g., 30
	overboughtThreshold float64 // e.g., 70

	prices     []float64
	rsi        float64
	prevAction signal.Action
}

// NewRSIStrategy creates a new RSI strategy.
func NewRSIStrategy(id string, period int, oversold, overbought float64) *RSIStrategy {
	return &RSIStrategy{
		id:                  id,
		period:              period,
		oversoldThreshold:   oversold,
		overboughtThreshold: overbought,
		prices:              make([]float64, 0, period+1),
		prevAction:          signal.ActionHold,
	}
}

func (s *RSIStrategy) ID() string {
	return s.id
}

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("RSI_%d", s.period)
}

func (s *RSIStrategy) OnTick(price float64) []Proposal {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.period+1 {
		s.prices = s.prices[1:]
	}

	// Need enough data to calculate RSI
	if len(s.prices) < s.period+1 {
		return nil
	}

	s.calculateRSI()

	switch {
	case s.rsi < s.oversoldThreshold && s.prevAction != signal.ActionBuyCall:
		s.prevAction = signal.ActionBuyCall
		reason := fmt.Sprintf("RSI oversold: %.1f < %.1f", s.rsi, s.oversoldThreshold)
		return []Proposal{
			{Action: signal.ActionBuyCall, Reason: reason},
			{Action: signal.ActionSellPut, Reason: reason},
		}
	case s.rsi > s.overboughtThreshold && s.prevAction != signal.ActionBuyPut:
		s.prevAction = signal.ActionBuyPut
		reason := fmt.Sprintf("RSI overbought: %.1f > %.1f", s.rsi, s.overboughtThreshold)
		return []Proposal{
			{Action: signal.ActionBuyPut, Reason: reason},
			{Action: signal.ActionSellCall, Reason: reason},
		}
	}
	return nil
}

func (s *RSIStrategy) calculateRSI() {
	var gains, losses float64
	for i := 1; i < len(s.prices); i++ {
		change := s.prices[i] - s.prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		s.rsi = 100
		return
	}
	avgGain := gains / float64(s.period)
	avgLoss := losses / float64(s.period)
	rs := avgGain / avgLoss
	s.rsi = 100 - 100/(1+rs)
}
