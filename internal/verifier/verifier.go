package verifier

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"warrant-trader/internal/events"
	"warrant-trader/internal/indicators"
	"warrant-trader/internal/signal"
)

// Sampling offsets from the trigger time and the per-sample tolerance.
const (
	sampleOffset1Ms   = 5_000
	sampleOffset2Ms   = 10_000
	sampleToleranceMs = 5_000
)

// Config holds the verification parameters, separately tunable for
// the buy and sell lanes.
type Config struct {
	BuyDelaySeconds  int           `yaml:"buy_delay_seconds"`
	SellDelaySeconds int           `yaml:"sell_delay_seconds"`
	BuyIndicators    []string      `yaml:"buy_indicators"`
	SellIndicators   []string      `yaml:"sell_indicators"`
	ScanInterval     time.Duration `yaml:"scan_interval"`
}

// VerifiedFunc receives signals that passed verification.
type VerifiedFunc func(sig *signal.Signal, monitorSymbol string)

// RejectedFunc receives rejected signals with the gate's reason.
type RejectedFunc func(sig *signal.Signal, reason string)

type entryState int

const (
	statePending entryState = iota
	stateVerifying
)

// pendingEntry is one signal awaiting its delayed confirmation.
// Exactly one entry exists per (symbol, action, triggerTime).
type pendingEntry struct {
	sig           *signal.Signal
	monitorSymbol string
	triggerMs     int64
	verifyMs      int64
	initial       map[string]float64
	state         entryState
	index         int // heap slot, -1 when popped
}

// Verifier holds signals for a configured delay, re-samples the
// indicator cache at fixed offsets past the trigger, and passes or
// rejects each signal on the trend it finds. One scan goroutine walks
// a verify-time min-heap instead of arming a timer per signal.
type Verifier struct {
	cfg   Config
	cache *indicators.Cache
	bus   *events.Bus

	mu        sync.Mutex
	entries   map[string]*pendingEntry
	heap      entryHeap
	onPass    []VerifiedFunc
	onReject  []RejectedFunc
	destroyed bool
	cancel    context.CancelFunc
	done      chan struct{}

	nowFn func() time.Time
}

// New builds a verifier over the indicator cache. Bus is optional and
// used for observability only.
func New(cfg Config, cache *indicators.Cache, bus *events.Bus) *Verifier {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 500 * time.Millisecond
	}
	return &Verifier{
		cfg:     cfg,
		cache:   cache,
		bus:     bus,
		entries: make(map[string]*pendingEntry),
		nowFn:   time.Now,
	}
}

// OnVerified registers a pass handler. Handlers run synchronously in
// registration order from the scan goroutine.
func (v *Verifier) OnVerified(fn VerifiedFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onPass = append(v.onPass, fn)
}

// OnRejected registers a rejection handler.
func (v *Verifier) OnRejected(fn RejectedFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onReject = append(v.onReject, fn)
}

// Start launches the periodic scan loop.
func (v *Verifier) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	v.mu.Lock()
	v.cancel = cancel
	v.done = done
	v.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(v.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.scan()
			}
		}
	}()
}

// indicatorsFor returns the configured indicator list for the action's
// lane.
func (v *Verifier) indicatorsFor(a signal.Action) []string {
	if a.IsSell() {
		return v.cfg.SellIndicators
	}
	return v.cfg.BuyIndicators
}

func (v *Verifier) delayFor(a signal.Action) int {
	if a.IsSell() {
		return v.cfg.SellDelaySeconds
	}
	return v.cfg.BuyDelaySeconds
}

// Add enqueues a signal for delayed verification. Configuration
// problems (missing trigger time, empty indicator list, missing
// initial readings) reject immediately; a duplicate identity releases
// the newcomer and keeps the original entry.
func (v *Verifier) Add(sig *signal.Signal, monitorSymbol string) error {
	if sig == nil {
		return fmt.Errorf("verifier: nil signal")
	}
	if sig.TriggerTime <= 0 {
		v.rejectNow(sig, "missing trigger time")
		return nil
	}

	names := v.indicatorsFor(sig.Action)
	if len(names) == 0 {
		v.rejectNow(sig, "no verification indicators configured")
		return nil
	}

	initial := make(map[string]float64, len(names))
	for _, name := range names {
		val, ok := sig.Indicators[name]
		if !ok || math.IsNaN(val) || math.IsInf(val, 0) {
			v.rejectNow(sig, fmt.Sprintf("initial reading for %q missing or not finite", name))
			return nil
		}
		initial[name] = val
	}

	entry := &pendingEntry{
		sig:           sig,
		monitorSymbol: monitorSymbol,
		triggerMs:     sig.TriggerTime,
		verifyMs:      sig.TriggerTime + int64(v.delayFor(sig.Action))*1000,
		initial:       initial,
		index:         -1,
	}

	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		sig.Release()
		return fmt.Errorf("verifier: destroyed")
	}
	key := sig.Identity()
	if _, exists := v.entries[key]; exists {
		v.mu.Unlock()
		log.Printf("verifier: duplicate %s, releasing newcomer", key)
		sig.Release()
		return nil
	}
	v.entries[key] = entry
	heap.Push(&v.heap, entry)
	v.mu.Unlock()

	log.Printf("verifier: pending %s %s trigger=%d verify=%d",
		sig.Symbol, sig.Action, entry.triggerMs, entry.verifyMs)
	return nil
}

// scan pops every due entry and verifies it outside the lock.
func (v *Verifier) scan() {
	nowMs := v.nowFn().UnixMilli()

	var due []*pendingEntry
	v.mu.Lock()
	for len(v.heap) > 0 && v.heap[0].verifyMs <= nowMs {
		e := heap.Pop(&v.heap).(*pendingEntry)
		e.state = stateVerifying
		delete(v.entries, e.sig.Identity())
		due = append(due, e)
	}
	v.mu.Unlock()

	for _, e := range due {
		v.verify(e)
	}
}

// verify applies the trend law: every configured indicator must move
// strictly in the signal's direction at all three sampled points.
// Partial agreement does not pass.
func (v *Verifier) verify(e *pendingEntry) {
	sig := e.sig
	names := v.indicatorsFor(sig.Action)
	bullish := sig.Action.IsBullish()

	targets := []int64{
		e.triggerMs,
		e.triggerMs + sampleOffset1Ms,
		e.triggerMs + sampleOffset2Ms,
	}

	for _, target := range targets {
		snap, ok := v.cache.QueryNear(e.monitorSymbol, target, sampleToleranceMs)
		if !ok {
			v.finishReject(sig, fmt.Sprintf("no indicator sample near t=%d (±%dms)", target, sampleToleranceMs))
			return
		}
		for _, name := range names {
			val, present := snap.Values[name]
			if !present || math.IsNaN(val) || math.IsInf(val, 0) {
				v.finishReject(sig, fmt.Sprintf("sample at t=%d has no finite %q", target, name))
				return
			}
			init := e.initial[name]
			if bullish && val <= init {
				v.finishReject(sig, fmt.Sprintf("%s not rising: %.4f <= %.4f at t=%d", name, val, init, target))
				return
			}
			if !bullish && val >= init {
				v.finishReject(sig, fmt.Sprintf("%s not falling: %.4f >= %.4f at t=%d", name, val, init, target))
				return
			}
		}
	}

	v.mu.Lock()
	handlers := append([]VerifiedFunc(nil), v.onPass...)
	v.mu.Unlock()

	log.Printf("verifier: passed %s %s", sig.Symbol, sig.Action)
	if v.bus != nil {
		v.bus.Publish(events.EventSignalVerified, sig)
	}
	for _, fn := range handlers {
		fn(sig, e.monitorSymbol)
	}
}

// rejectNow handles configuration rejects at add time.
func (v *Verifier) rejectNow(sig *signal.Signal, reason string) {
	log.Printf("verifier: rejected %s %s at add: %s", sig.Symbol, sig.Action, reason)
	v.finishReject(sig, reason)
}

func (v *Verifier) finishReject(sig *signal.Signal, reason string) {
	v.mu.Lock()
	handlers := append([]RejectedFunc(nil), v.onReject...)
	v.mu.Unlock()

	if v.bus != nil {
		v.bus.Publish(events.EventSignalRejected, map[string]any{
			"symbol": sig.Symbol,
			"action": sig.Action,
			"reason": reason,
		})
	}
	for _, fn := range handlers {
		fn(sig, reason)
	}
	sig.Release()
}

// PendingCount returns the number of in-flight verification entries.
func (v *Verifier) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// CancelAllForSymbol clears pending entries for a symbol and releases
// their signals without running verification. Safe against a
// concurrent scan: a lost race means the entry was already removed.
func (v *Verifier) CancelAllForSymbol(symbol string) int {
	return v.cancelWhere(func(e *pendingEntry) bool { return e.sig.Symbol == symbol })
}

// CancelAllForDirection clears pending entries on one side of the book.
func (v *Verifier) CancelAllForDirection(dir signal.Direction) int {
	return v.cancelWhere(func(e *pendingEntry) bool { return e.sig.Action.Direction() == dir })
}

func (v *Verifier) cancelWhere(match func(*pendingEntry) bool) int {
	v.mu.Lock()
	var victims []*pendingEntry
	for key, e := range v.entries {
		if e.state == statePending && match(e) {
			delete(v.entries, key)
			if e.index >= 0 {
				heap.Remove(&v.heap, e.index)
			}
			victims = append(victims, e)
		}
	}
	v.mu.Unlock()

	for _, e := range victims {
		e.sig.Release()
	}
	if len(victims) > 0 {
		log.Printf("verifier: cancelled %d pending entries", len(victims))
	}
	return len(victims)
}

// Destroy stops the scan loop, clears all pending entries, and
// releases their signals. Idempotent.
func (v *Verifier) Destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	cancel := v.cancel
	done := v.done
	victims := make([]*pendingEntry, 0, len(v.entries))
	for _, e := range v.entries {
		victims = append(victims, e)
	}
	v.entries = make(map[string]*pendingEntry)
	v.heap = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, e := range victims {
		e.sig.Release()
	}
	log.Printf("verifier: destroyed, released %d pending entries", len(victims))
}
