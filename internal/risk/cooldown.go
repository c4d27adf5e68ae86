package risk

import (
	"log"
	"sync"
	"time"

	"warrant-trader/internal/signal"
)

// CooldownMode selects how long re-entry stays blocked after a
// protective liquidation.
type CooldownMode string

const (
	CooldownMinutes CooldownMode = "minutes"
	CooldownHalfDay CooldownMode = "half-day"
	CooldownOneDay  CooldownMode = "one-day"
)

// CooldownConfig parameterizes the no-re-entry window.
type CooldownConfig struct {
	Mode    CooldownMode `yaml:"mode"`
	Minutes int          `yaml:"minutes"` // used by CooldownMinutes only
}

// CooldownRecord marks one protective liquidation.
type CooldownRecord struct {
	Symbol     string           `json:"symbol"`
	Direction  signal.Direction `json:"direction"`
	ExecutedMs int64            `json:"executed_ms"`
}

// CooldownTracker records protective liquidations and answers how long
// re-entry on the same symbol/direction remains blocked. Records are
// never eagerly deleted; expiry is computed at query time.
type CooldownTracker struct {
	mu      sync.RWMutex
	records map[string]CooldownRecord
	loc     *time.Location

	nowFn func() time.Time
}

// NewCooldownTracker builds a tracker. Boundary modes (half-day,
// one-day) are evaluated against wall clock in loc; nil means Local.
func NewCooldownTracker(loc *time.Location) *CooldownTracker {
	if loc == nil {
		loc = time.Local
	}
	return &CooldownTracker{
		records: make(map[string]CooldownRecord),
		loc:     loc,
		nowFn:   time.Now,
	}
}

func cooldownKey(symbol string, dir signal.Direction) string {
	return symbol + "|" + string(dir)
}

// Record stores a protective liquidation. executedMs is the order's
// own update timestamp, not the notification receipt time.
func (t *CooldownTracker) Record(symbol string, dir signal.Direction, executedMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[cooldownKey(symbol, dir)] = CooldownRecord{
		Symbol:     symbol,
		Direction:  dir,
		ExecutedMs: executedMs,
	}
	log.Printf("cooldown: armed %s %s at %d", symbol, dir, executedMs)
}

// GetRemainingMs returns the milliseconds left in the cooldown window,
// or 0 when no window applies. Strictly decreasing in now once past
// the execution time, exactly 0 at the boundary and after.
func (t *CooldownTracker) GetRemainingMs(symbol string, dir signal.Direction, cfg CooldownConfig) int64 {
	t.mu.RLock()
	rec, ok := t.records[cooldownKey(symbol, dir)]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	expiry := t.expiryMs(rec.ExecutedMs, cfg)
	remaining := expiry - t.nowFn().UnixMilli()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// expiryMs computes the mode-specific boundary. minutes: a fixed
// window after execution. half-day: the next 12:00 or 24:00 wall-clock
// boundary after execution. one-day: the next midnight.
func (t *CooldownTracker) expiryMs(executedMs int64, cfg CooldownConfig) int64 {
	executed := time.UnixMilli(executedMs).In(t.loc)
	switch cfg.Mode {
	case CooldownHalfDay:
		midnight := time.Date(executed.Year(), executed.Month(), executed.Day(), 0, 0, 0, 0, t.loc)
		noon := midnight.Add(12 * time.Hour)
		if executed.Before(noon) {
			return noon.UnixMilli()
		}
		return midnight.Add(24 * time.Hour).UnixMilli()
	case CooldownOneDay:
		midnight := time.Date(executed.Year(), executed.Month(), executed.Day(), 0, 0, 0, 0, t.loc)
		return midnight.Add(24 * time.Hour).UnixMilli()
	default:
		minutes := cfg.Minutes
		if minutes <= 0 {
			minutes = 30
		}
		return executedMs + int64(minutes)*60_000
	}
}

// Records returns a snapshot of all recorded liquidations.
func (t *CooldownTracker) Records() []CooldownRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CooldownRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	return out
}
