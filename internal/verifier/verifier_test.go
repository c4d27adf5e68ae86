package verifier

import (
	"math"
	"testing"
	"time"

	"warrant-trader/internal/indicators"
	"warrant-trader/internal/signal"
)

const baseMs = int64(1_700_000_000_000)

func testConfig() Config {
	return Config{
		BuyDelaySeconds:  10,
		SellDelaySeconds: 10,
		BuyIndicators:    []string{"price"},
		SellIndicators:   []string{"price"},
		ScanInterval:     time.Hour, // scans driven manually in tests
	}
}

func newTestVerifier(t *testing.T) (*Verifier, *indicators.Cache, *int64) {
	t.Helper()
	cache := indicators.NewCache(time.Hour)
	v := New(testConfig(), cache, nil)
	nowMs := baseMs
	v.nowFn = func() time.Time { return time.UnixMilli(nowMs) }
	return v, cache, &nowMs
}

func push(cache *indicators.Cache, symbol string, tsMs int64, price float64) {
	cache.Push(symbol, indicators.Snapshot{
		TimestampMs: tsMs,
		Values:      map[string]float64{"price": price},
	})
}

func newSignal(action signal.Action, triggerMs int64, initial float64) *signal.Signal {
	s := signal.New("55555.HK", action, "test")
	s.TriggerTime = triggerMs
	s.Indicators = map[string]float64{"price": initial}
	return s
}

func TestVerifierTrendLaw(t *testing.T) {
	tests := []struct {
		name     string
		action   signal.Action
		initial  float64
		samples  [3]float64 // at T0, T0+5s, T0+10s
		wantPass bool
	}{
		{
			name:     "bullish all rising passes",
			action:   signal.ActionBuyCall,
			initial:  100,
			samples:  [3]float64{100.5, 101, 102},
			wantPass: true,
		},
		{
			name:     "bullish single flat sample fails",
			action:   signal.ActionBuyCall,
			initial:  100,
			samples:  [3]float64{100.5, 100, 102},
			wantPass: false,
		},
		{
			name:     "bullish single dip fails",
			action:   signal.ActionBuyCall,
			initial:  100,
			samples:  [3]float64{100.5, 101, 99.9},
			wantPass: false,
		},
		{
			name:     "bearish all falling passes",
			action:   signal.ActionBuyPut,
			initial:  100,
			samples:  [3]float64{99.5, 99, 98},
			wantPass: true,
		},
		{
			name:     "bearish single rise fails",
			action:   signal.ActionBuyPut,
			initial:  100,
			samples:  [3]float64{99.5, 100.1, 98},
			wantPass: false,
		},
		{
			name:    "sell-put is bullish",
			action:  signal.ActionSellPut,
			initial: 100,
			// rising trend confirms the exit from short exposure
			samples:  [3]float64{100.5, 101, 102},
			wantPass: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, cache, nowMs := newTestVerifier(t)
			defer v.Destroy()

			trigger := baseMs
			push(cache, "HSI", trigger, tt.samples[0])
			push(cache, "HSI", trigger+5000, tt.samples[1])
			push(cache, "HSI", trigger+10000, tt.samples[2])

			var passed, rejected bool
			v.OnVerified(func(s *signal.Signal, monitorSymbol string) { passed = true })
			v.OnRejected(func(s *signal.Signal, reason string) { rejected = true })

			if err := v.Add(newSignal(tt.action, trigger, tt.initial), "HSI"); err != nil {
				t.Fatalf("Add returned error: %v", err)
			}

			*nowMs = trigger + 11_000
			v.scan()

			if passed != tt.wantPass {
				t.Fatalf("passed=%v, expected %v (rejected=%v)", passed, tt.wantPass, rejected)
			}
			if rejected == tt.wantPass {
				t.Fatalf("rejected=%v inconsistent with passed=%v", rejected, passed)
			}
		})
	}
}

func TestVerifierRejectsMissingSample(t *testing.T) {
	v, cache, nowMs := newTestVerifier(t)
	defer v.Destroy()

	trigger := baseMs
	// Only the first two sample points exist; the T0+10s window
	// (±5s tolerance) has nothing within reach.
	push(cache, "HSI", trigger, 100.5)
	push(cache, "HSI", trigger+4000, 101)

	var reason string
	v.OnRejected(func(s *signal.Signal, r string) { reason = r })

	if err := v.Add(newSignal(signal.ActionBuyCall, trigger, 100), "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	*nowMs = trigger + 20_000
	v.scan()

	if reason == "" {
		t.Fatal("expected a rejection for the missing sample")
	}
}

func TestVerifierSampleTolerance(t *testing.T) {
	// A sample 4.9s away from the target is still usable; the nearest
	// in-tolerance snapshot is chosen.
	v, cache, nowMs := newTestVerifier(t)
	defer v.Destroy()

	trigger := baseMs
	push(cache, "HSI", trigger+4900, 100.5) // serves T0 and T0+5s
	push(cache, "HSI", trigger+10_200, 102) // serves T0+10s

	var passed bool
	v.OnVerified(func(s *signal.Signal, monitorSymbol string) { passed = true })

	if err := v.Add(newSignal(signal.ActionBuyCall, trigger, 100), "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	*nowMs = trigger + 11_000
	v.scan()

	if !passed {
		t.Fatal("expected pass with in-tolerance samples")
	}
}

func TestVerifierAddRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		sig  *signal.Signal
	}{
		{
			name: "missing trigger time",
			sig: func() *signal.Signal {
				s := signal.New("55555.HK", signal.ActionBuyCall, "test")
				s.TriggerTime = 0
				s.Indicators = map[string]float64{"price": 100}
				return s
			}(),
		},
		{
			name: "missing initial reading",
			sig: func() *signal.Signal {
				s := signal.New("55555.HK", signal.ActionBuyCall, "test")
				s.Indicators = nil
				return s
			}(),
		},
		{
			name: "non-finite initial reading",
			sig: func() *signal.Signal {
				s := signal.New("55555.HK", signal.ActionBuyCall, "test")
				s.Indicators = map[string]float64{"price": math.NaN()}
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, _ := newTestVerifier(t)
			defer v.Destroy()

			var rejected bool
			v.OnRejected(func(s *signal.Signal, reason string) { rejected = true })

			if err := v.Add(tt.sig, "HSI"); err != nil {
				t.Fatalf("Add returned error: %v", err)
			}
			if !rejected {
				t.Fatal("expected immediate rejection")
			}
			if v.PendingCount() != 0 {
				t.Fatalf("PendingCount=%d, expected 0", v.PendingCount())
			}
		})
	}
}

func TestVerifierDuplicateReleasesNewcomer(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	defer v.Destroy()

	trigger := baseMs
	first := newSignal(signal.ActionBuyCall, trigger, 100)
	dup := newSignal(signal.ActionBuyCall, trigger, 100)

	if err := v.Add(first, "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := v.Add(dup, "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if v.PendingCount() != 1 {
		t.Fatalf("PendingCount=%d, expected 1", v.PendingCount())
	}
	if !dup.Consumed() {
		t.Fatal("duplicate must be released")
	}
	if first.Consumed() {
		t.Fatal("original must stay pending")
	}
}

func TestVerifierCancelBySymbolAndDirection(t *testing.T) {
	v, _, _ := newTestVerifier(t)
	defer v.Destroy()

	long := newSignal(signal.ActionBuyCall, baseMs, 100)
	short := newSignal(signal.ActionBuyPut, baseMs+1, 100)
	short.Symbol = "66666.HK"

	if err := v.Add(long, "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := v.Add(short, "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if n := v.CancelAllForSymbol("55555.HK"); n != 1 {
		t.Fatalf("CancelAllForSymbol=%d, expected 1", n)
	}
	if !long.Consumed() {
		t.Fatal("cancelled signal must be released")
	}

	if n := v.CancelAllForDirection(signal.DirectionShort); n != 1 {
		t.Fatalf("CancelAllForDirection=%d, expected 1", n)
	}
	if v.PendingCount() != 0 {
		t.Fatalf("PendingCount=%d, expected 0", v.PendingCount())
	}
}

func TestVerifierDestroyIdempotent(t *testing.T) {
	v, _, _ := newTestVerifier(t)

	s := newSignal(signal.ActionBuyCall, baseMs, 100)
	if err := v.Add(s, "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	v.Destroy()
	v.Destroy()

	if !s.Consumed() {
		t.Fatal("pending signal must be released on destroy")
	}
	if err := v.Add(newSignal(signal.ActionBuyCall, baseMs+5, 100), "HSI"); err == nil {
		t.Fatal("Add after destroy must fail")
	}
}

func TestVerifierScanSkipsFutureEntries(t *testing.T) {
	v, _, nowMs := newTestVerifier(t)
	defer v.Destroy()

	if err := v.Add(newSignal(signal.ActionBuyCall, baseMs, 100), "HSI"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	// Verify time is trigger+10s; a scan before that must not touch it.
	*nowMs = baseMs + 9_000
	v.scan()
	if v.PendingCount() != 1 {
		t.Fatalf("PendingCount=%d, expected 1", v.PendingCount())
	}
}
