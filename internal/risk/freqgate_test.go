package risk

import (
	"testing"
	"time"

	"warrant-trader/internal/signal"
)

func TestFrequencyGateOptimisticMarking(t *testing.T) {
	g := NewFrequencyGate(60 * time.Second)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	ok, _ := g.TryPass(signal.DirectionLong)
	if !ok {
		t.Fatal("first attempt must pass")
	}

	// A second attempt in the same instant is blocked even though no
	// order has been submitted yet; the pass itself marked the time.
	ok, wait := g.TryPass(signal.DirectionLong)
	if ok {
		t.Fatal("burst attempt must be blocked")
	}
	if wait != 60*time.Second {
		t.Fatalf("wait=%v, expected 60s", wait)
	}

	now = now.Add(59 * time.Second)
	if ok, wait = g.TryPass(signal.DirectionLong); ok || wait != time.Second {
		t.Fatalf("ok=%v wait=%v, expected blocked with 1s", ok, wait)
	}

	now = now.Add(time.Second)
	if ok, _ = g.TryPass(signal.DirectionLong); !ok {
		t.Fatal("attempt at interval boundary must pass")
	}
}

func TestFrequencyGatePerDirection(t *testing.T) {
	g := NewFrequencyGate(60 * time.Second)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	if ok, _ := g.TryPass(signal.DirectionLong); !ok {
		t.Fatal("long must pass")
	}
	if ok, _ := g.TryPass(signal.DirectionShort); !ok {
		t.Fatal("short lane has its own interval")
	}
}

func TestFrequencyGateZeroIntervalDisabled(t *testing.T) {
	g := NewFrequencyGate(0)
	for i := 0; i < 3; i++ {
		if ok, _ := g.TryPass(signal.DirectionLong); !ok {
			t.Fatal("zero interval must never block")
		}
	}
}

func TestFrequencyGateReset(t *testing.T) {
	g := NewFrequencyGate(time.Hour)
	if ok, _ := g.TryPass(signal.DirectionLong); !ok {
		t.Fatal("first attempt must pass")
	}
	g.Reset()
	if ok, _ := g.TryPass(signal.DirectionLong); !ok {
		t.Fatal("attempt after reset must pass")
	}
}
