package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"warrant-trader/internal/risk"
	"warrant-trader/internal/signal"
	"warrant-trader/pkg/broker"
	"warrant-trader/pkg/cache"
)

// fakeTrader records calls and serves canned data.
type fakeTrader struct {
	mu        sync.Mutex
	account   *broker.AccountSnapshot
	positions []broker.StockPosition
	pending   []broker.PendingOrder
	today     []broker.PendingOrder

	accountErr   error
	positionsErr error

	submitted []broker.OrderRequest
	replaced  []string
}

func (f *fakeTrader) GetAccountSnapshot(ctx context.Context) (*broker.AccountSnapshot, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return f.account, nil
}

func (f *fakeTrader) GetStockPositions(ctx context.Context, symbols []string) ([]broker.StockPosition, error) {
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.positions, nil
}

func (f *fakeTrader) GetPendingOrders(ctx context.Context, symbols []string) ([]broker.PendingOrder, error) {
	return f.pending, nil
}

func (f *fakeTrader) GetTodayOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	return f.today, nil
}

func (f *fakeTrader) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return broker.OrderResult{OrderID: "ORDER-1", Status: broker.StatusNew}, nil
}

func (f *fakeTrader) ReplaceOrder(ctx context.Context, orderID string, price float64, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, orderID)
	return nil
}

func (f *fakeTrader) CancelOrder(ctx context.Context, orderID string) error { return nil }

func testOrderConfig() Config {
	return Config{
		MonitorSymbol:       "HSI",
		LongSymbol:          "55555.HK",
		ShortSymbol:         "66666.HK",
		LongLot:             1000,
		ShortLot:            1000,
		BuyNotional:         5000,
		NormalOrderType:     broker.OrderTypeEnhancedLimit,
		ProtectiveOrderType: broker.OrderTypeMarket,
		QuoteMaxAge:         time.Minute,
		Cooldown:            risk.CooldownConfig{Mode: risk.CooldownMinutes, Minutes: 30},
	}
}

func instantLimiter() *broker.RateLimiter {
	return broker.NewRateLimiter(1000, time.Second, 0)
}

func testDeps(trader *fakeTrader, checker *risk.Checker) Deps {
	return Deps{
		Trader:     trader,
		Limiter:    instantLimiter(),
		OrderCache: broker.NewPendingOrderCache(time.Minute),
		Checker:    checker,
		Quotes:     cache.NewQuoteCache(),
	}
}

func TestTaskQueueFIFO(t *testing.T) {
	q := NewTaskQueue(10)
	for i := 0; i < 3; i++ {
		s := signal.New("55555.HK", signal.ActionBuyCall, "test")
		s.TriggerTime = int64(i + 1)
		if !q.Enqueue(Task{Signal: s}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Drain(ctx, func(task Task) {
			got = append(got, task.Signal.TriggerTime)
			if len(got) == 3 {
				cancel()
			}
		})
	}()
	<-done

	for i, ts := range got {
		if ts != int64(i+1) {
			t.Fatalf("got order %v, expected FIFO", got)
		}
	}
}

func TestTaskQueueSaturation(t *testing.T) {
	q := NewTaskQueue(1)
	s := signal.New("55555.HK", signal.ActionBuyCall, "test")
	if !q.Enqueue(Task{Signal: s}) {
		t.Fatal("first enqueue must succeed")
	}
	if q.Enqueue(Task{Signal: s}) {
		t.Fatal("enqueue past capacity must fail, not block")
	}
}

func TestQuantityForNotional(t *testing.T) {
	tests := []struct {
		name     string
		notional float64
		price    float64
		lot      int64
		want     int64
	}{
		{"exact lots", 5000, 0.5, 1000, 10000},
		{"floors to lot", 5000, 0.51, 1000, 9000},
		{"sub-cent price", 100, 0.029, 100, 3400},
		{"zero price", 5000, 0, 1000, 0},
		{"zero notional", 0, 0.5, 1000, 0},
		{"below one lot", 100, 0.5, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quantityForNotional(tt.notional, tt.price, tt.lot); got != tt.want {
				t.Fatalf("quantityForNotional(%v, %v, %d)=%d, expected %d",
					tt.notional, tt.price, tt.lot, got, tt.want)
			}
		})
	}
}

func TestBuyProcessorSubmits(t *testing.T) {
	trader := &fakeTrader{account: &broker.AccountSnapshot{BuyPower: 100000}}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.5)

	p := NewBuyProcessor(testOrderConfig(), deps, NewTaskQueue(10),
		risk.NewFrequencyGate(0), risk.NewCooldownTracker(time.UTC))

	s := signal.New("55555.HK", signal.ActionBuyCall, "test")
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI"})

	if len(trader.submitted) != 1 {
		t.Fatalf("submitted=%d, expected 1", len(trader.submitted))
	}
	req := trader.submitted[0]
	if req.Side != broker.SideBuy || req.Symbol != "55555.HK" {
		t.Fatalf("unexpected request %+v", req)
	}
	// 5000 notional at 0.5 is 10000 shares, whole lots of 1000.
	if req.Quantity != 10000 {
		t.Fatalf("Quantity=%d, expected 10000", req.Quantity)
	}
	if req.ClientID == "" {
		t.Fatal("ClientID must be set")
	}
}

func TestBuyProcessorFailsClosedOnAccountError(t *testing.T) {
	trader := &fakeTrader{accountErr: errors.New("gateway timeout")}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.5)

	p := NewBuyProcessor(testOrderConfig(), deps, NewTaskQueue(10),
		risk.NewFrequencyGate(0), risk.NewCooldownTracker(time.UTC))

	s := signal.New("55555.HK", signal.ActionBuyCall, "test")
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI"})

	if len(trader.submitted) != 0 {
		t.Fatal("buy must be dropped when the account fetch fails")
	}
}

func TestBuyProcessorHonorsCooldown(t *testing.T) {
	trader := &fakeTrader{account: &broker.AccountSnapshot{BuyPower: 100000}}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.5)

	cooldowns := risk.NewCooldownTracker(time.UTC)
	cooldowns.Record("55555.HK", signal.DirectionLong, time.Now().UnixMilli())

	p := NewBuyProcessor(testOrderConfig(), deps, NewTaskQueue(10),
		risk.NewFrequencyGate(0), cooldowns)

	s := signal.New("55555.HK", signal.ActionBuyCall, "test")
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI"})

	if len(trader.submitted) != 0 {
		t.Fatal("buy during cooldown must be dropped")
	}
}

func TestBuyProcessorConsumedSignalIgnored(t *testing.T) {
	trader := &fakeTrader{account: &broker.AccountSnapshot{BuyPower: 100000}}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.5)

	p := NewBuyProcessor(testOrderConfig(), deps, NewTaskQueue(10),
		risk.NewFrequencyGate(0), risk.NewCooldownTracker(time.UTC))

	s := signal.New("55555.HK", signal.ActionBuyCall, "test")
	s.Release()
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI"})

	if len(trader.submitted) != 0 {
		t.Fatal("released signal must never reach submission")
	}
}

func TestSellProcessorProtectiveOrder(t *testing.T) {
	trader := &fakeTrader{
		positions: []broker.StockPosition{
			{Symbol: "55555.HK", Quantity: 2500, AvailableQty: 2500, CostPrice: 0.5},
		},
	}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.45)

	p := NewSellProcessor(testOrderConfig(), deps, NewTaskQueue(10))

	s := signal.New("55555.HK", signal.ActionSellCall, "loss breach")
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI", Protective: true})

	if len(trader.submitted) != 1 {
		t.Fatalf("submitted=%d, expected 1", len(trader.submitted))
	}
	req := trader.submitted[0]
	if req.Type != broker.OrderTypeMarket {
		t.Fatalf("Type=%s, expected market order for protective sell", req.Type)
	}
	// 2500 available floors to 2000 at lot size 1000.
	if req.Quantity != 2000 {
		t.Fatalf("Quantity=%d, expected 2000", req.Quantity)
	}
	if !strings.HasPrefix(req.Remark, ProtectiveRemark) {
		t.Fatalf("Remark=%q, expected protective prefix", req.Remark)
	}
}

func TestSellProcessorNoPosition(t *testing.T) {
	trader := &fakeTrader{}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))

	p := NewSellProcessor(testOrderConfig(), deps, NewTaskQueue(10))
	s := signal.New("55555.HK", signal.ActionSellCall, "test")
	p.handle(context.Background(), Task{Signal: s, MonitorSymbol: "HSI"})

	if len(trader.submitted) != 0 {
		t.Fatal("sell with no position must be dropped")
	}
}

func TestSellProcessorFallsBackToCachedPositions(t *testing.T) {
	trader := &fakeTrader{
		positions: []broker.StockPosition{
			{Symbol: "55555.HK", Quantity: 1000, AvailableQty: 1000, CostPrice: 0.5},
		},
	}
	deps := testDeps(trader, risk.NewChecker(risk.Config{}, nil))
	deps.Quotes.Set("55555.HK", 0.45)
	p := NewSellProcessor(testOrderConfig(), deps, NewTaskQueue(10))

	// First sell primes the cache.
	s1 := signal.New("55555.HK", signal.ActionSellCall, "test")
	p.handle(context.Background(), Task{Signal: s1, MonitorSymbol: "HSI"})
	if len(trader.submitted) != 1 {
		t.Fatalf("submitted=%d, expected 1", len(trader.submitted))
	}

	// Brokerage breaks; the cached snapshot still drives the sell.
	trader.positionsErr = errors.New("gateway timeout")
	s2 := signal.New("55555.HK", signal.ActionSellCall, "test")
	s2.TriggerTime++
	p.handle(context.Background(), Task{Signal: s2, MonitorSymbol: "HSI"})
	if len(trader.submitted) != 2 {
		t.Fatal("sell must fail open on position fetch error")
	}
}

func TestMonitorReplacesWhenMarketDrops(t *testing.T) {
	trader := &fakeTrader{
		pending: []broker.PendingOrder{
			{OrderID: "O1", Symbol: "55555.HK", Side: broker.SideBuy, SubmittedPrice: 0.500, Quantity: 1000, Status: broker.StatusNew},
		},
	}
	deps := testDeps(trader, nil)
	deps.Quotes.Set("55555.HK", 0.498) // 0.002 below resting, over one tick

	m := NewMonitor(testOrderConfig(), deps, risk.NewUnrealizedLossTracker(), risk.NewCooldownTracker(time.UTC), time.Second)
	m.Arm()
	m.cycle(context.Background())

	if len(trader.replaced) != 1 || trader.replaced[0] != "O1" {
		t.Fatalf("replaced=%v, expected [O1]", trader.replaced)
	}
}

func TestMonitorHoldsWithinOneTick(t *testing.T) {
	trader := &fakeTrader{
		pending: []broker.PendingOrder{
			{OrderID: "O1", Symbol: "55555.HK", Side: broker.SideBuy, SubmittedPrice: 0.500, Quantity: 1000, Status: broker.StatusNew},
		},
	}
	deps := testDeps(trader, nil)
	deps.Quotes.Set("55555.HK", 0.4995) // half a tick below

	m := NewMonitor(testOrderConfig(), deps, risk.NewUnrealizedLossTracker(), risk.NewCooldownTracker(time.UTC), time.Second)
	m.Arm()
	m.cycle(context.Background())

	if len(trader.replaced) != 0 {
		t.Fatalf("replaced=%v, expected none within one tick", trader.replaced)
	}
}

func TestMonitorIdlesWithoutBuyOrders(t *testing.T) {
	trader := &fakeTrader{
		pending: []broker.PendingOrder{
			{OrderID: "O1", Symbol: "55555.HK", Side: broker.SideSell, SubmittedPrice: 0.5, Quantity: 1000, Status: broker.StatusNew},
			{OrderID: "O2", Symbol: "55555.HK", Side: broker.SideBuy, SubmittedPrice: 0.5, Quantity: 1000, Status: broker.StatusFilled},
		},
	}
	deps := testDeps(trader, nil)

	m := NewMonitor(testOrderConfig(), deps, risk.NewUnrealizedLossTracker(), risk.NewCooldownTracker(time.UTC), time.Second)
	m.Arm()
	m.cycle(context.Background())

	if m.active.Load() {
		t.Fatal("monitor must go idle with no outstanding buys")
	}
}

func TestMonitorStaysActiveDuringReplace(t *testing.T) {
	trader := &fakeTrader{
		pending: []broker.PendingOrder{
			{OrderID: "O1", Symbol: "55555.HK", Side: broker.SideBuy, SubmittedPrice: 0.5, Quantity: 1000, Status: broker.StatusReplacing},
		},
	}
	deps := testDeps(trader, nil)

	m := NewMonitor(testOrderConfig(), deps, risk.NewUnrealizedLossTracker(), risk.NewCooldownTracker(time.UTC), time.Second)
	m.Arm()
	m.cycle(context.Background())

	if !m.active.Load() {
		t.Fatal("monitor must stay awake while a replace is settling")
	}
	if len(trader.replaced) != 0 {
		t.Fatalf("replacing order must not be chased, got %d replaces", len(trader.replaced))
	}
}

func TestMonitorStatusEventRouting(t *testing.T) {
	trader := &fakeTrader{}
	deps := testDeps(trader, nil)
	losses := risk.NewUnrealizedLossTracker()
	cooldowns := risk.NewCooldownTracker(time.UTC)
	m := NewMonitor(testOrderConfig(), deps, losses, cooldowns, time.Second)

	executed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// Buy fill lands in the loss ledger.
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O1", Symbol: "55555.HK", Side: broker.SideBuy,
		Status: broker.StatusFilled, ExecutedQty: 1000, ExecutedPx: 0.5,
		UpdatedAt: executed,
	})
	rec, ok := losses.Record("55555.HK")
	if !ok || rec.OpenQty != 1000 || rec.OpenCost != 500 {
		t.Fatalf("loss record=%+v ok=%v, expected qty=1000 cost=500", rec, ok)
	}

	// Ordinary sell fill reduces the ledger, no cooldown.
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O2", Symbol: "55555.HK", Side: broker.SideSell,
		Status: broker.StatusFilled, ExecutedQty: 500, ExecutedPx: 0.48,
		UpdatedAt: executed,
	})
	if len(cooldowns.Records()) != 0 {
		t.Fatal("plain sell must not arm a cooldown")
	}

	// Protective sell fill arms the cooldown with the order's own time.
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O3", Symbol: "55555.HK", Side: broker.SideSell,
		Status: broker.StatusFilled, ExecutedQty: 500, ExecutedPx: 0.45,
		Remark:    ProtectiveRemark + ": loss breach",
		UpdatedAt: executed,
	})
	recs := cooldowns.Records()
	if len(recs) != 1 {
		t.Fatalf("cooldown records=%d, expected 1", len(recs))
	}
	if recs[0].ExecutedMs != executed.UnixMilli() {
		t.Fatalf("ExecutedMs=%d, expected the order's own timestamp %d",
			recs[0].ExecutedMs, executed.UnixMilli())
	}
	if recs[0].Direction != signal.DirectionLong {
		t.Fatalf("Direction=%s, expected LONG for the long warrant", recs[0].Direction)
	}

	// Non-fill events only invalidate the cache.
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O4", Symbol: "55555.HK", Side: broker.SideBuy,
		Status: broker.StatusCanceled,
	})
}

func TestMonitorFillRedeliveryIdempotent(t *testing.T) {
	trader := &fakeTrader{}
	deps := testDeps(trader, nil)
	losses := risk.NewUnrealizedLossTracker()
	cooldowns := risk.NewCooldownTracker(time.UTC)
	m := NewMonitor(testOrderConfig(), deps, losses, cooldowns, time.Second)

	executed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fill := broker.OrderStatusEvent{
		OrderID: "O1", Symbol: "55555.HK", Side: broker.SideBuy,
		Status: broker.StatusFilled, ExecutedQty: 1000, ExecutedPx: 0.5,
		UpdatedAt: executed,
	}

	// The same FILLED event delivered twice counts once.
	m.HandleStatusEvent(fill)
	m.HandleStatusEvent(fill)
	rec, ok := losses.Record("55555.HK")
	if !ok || rec.OpenQty != 1000 {
		t.Fatalf("OpenQty=%d after redelivery, expected 1000", rec.OpenQty)
	}

	// Partial fill followed by the cumulative final fill ledgers the
	// delta only, not the running total twice.
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O2", Symbol: "55555.HK", Side: broker.SideBuy,
		Status: broker.StatusPartialFilled, ExecutedQty: 500, ExecutedPx: 0.5,
		UpdatedAt: executed,
	})
	m.HandleStatusEvent(broker.OrderStatusEvent{
		OrderID: "O2", Symbol: "55555.HK", Side: broker.SideBuy,
		Status: broker.StatusFilled, ExecutedQty: 1000, ExecutedPx: 0.5,
		UpdatedAt: executed,
	})
	rec, _ = losses.Record("55555.HK")
	if rec.OpenQty != 2000 {
		t.Fatalf("OpenQty=%d after partial then final, expected 2000", rec.OpenQty)
	}

	// Redelivered protective sell arms the cooldown once.
	sell := broker.OrderStatusEvent{
		OrderID: "O3", Symbol: "55555.HK", Side: broker.SideSell,
		Status: broker.StatusFilled, ExecutedQty: 2000, ExecutedPx: 0.4,
		Remark:    ProtectiveRemark + ": loss breach",
		UpdatedAt: executed,
	}
	m.HandleStatusEvent(sell)
	m.HandleStatusEvent(sell)
	rec, _ = losses.Record("55555.HK")
	if rec.OpenQty != 0 {
		t.Fatalf("OpenQty=%d after duplicate sell, expected 0", rec.OpenQty)
	}
	if got := len(cooldowns.Records()); got != 1 {
		t.Fatalf("cooldown records=%d after duplicate sell, expected 1", got)
	}
}

func TestLossGuardQueuesProtectiveSell(t *testing.T) {
	losses := risk.NewUnrealizedLossTracker()
	losses.Seed("55555.HK", []risk.Fill{
		{Symbol: "55555.HK", IsBuy: true, Price: 0.5, Quantity: 10000},
	})
	quotes := cache.NewQuoteCache()
	quotes.Set("55555.HK", 0.3) // paper loss -2000

	sellQueue := NewTaskQueue(10)
	g := NewLossGuard(testOrderConfig(), risk.Config{MaxDailyLoss: 1000},
		losses, sellQueue, quotes, nil, time.Second)

	g.check("55555.HK", signal.ActionSellCall)

	select {
	case task := <-sellQueue.ch:
		if !task.Protective {
			t.Fatal("queued task must be protective")
		}
		if task.Signal.Action != signal.ActionSellCall {
			t.Fatalf("Action=%s, expected SELLCALL", task.Signal.Action)
		}
	default:
		t.Fatal("expected a protective sell task")
	}

	// A second breach check inside the retry window must not queue
	// again.
	g.check("55555.HK", signal.ActionSellCall)
	select {
	case <-sellQueue.ch:
		t.Fatal("breach must fire only once per retry window")
	default:
	}
}

func TestLossGuardRetriesWhileBreached(t *testing.T) {
	losses := risk.NewUnrealizedLossTracker()
	losses.Seed("55555.HK", []risk.Fill{
		{Symbol: "55555.HK", IsBuy: true, Price: 0.5, Quantity: 10000},
	})
	quotes := cache.NewQuoteCache()
	quotes.Set("55555.HK", 0.3)

	sellQueue := NewTaskQueue(10)
	g := NewLossGuard(testOrderConfig(), risk.Config{MaxDailyLoss: 1000},
		losses, sellQueue, quotes, nil, time.Second)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	g.check("55555.HK", signal.ActionSellCall)
	<-sellQueue.ch

	// The liquidation was lost downstream and the position is still
	// open and breached. Once the retry window elapses the guard must
	// queue another sell rather than stay latched forever.
	now = now.Add(g.retryAfter)
	g.check("55555.HK", signal.ActionSellCall)
	select {
	case task := <-sellQueue.ch:
		if !task.Protective {
			t.Fatal("retried task must be protective")
		}
	default:
		t.Fatal("expected a retried protective sell after the window")
	}

	// A fill that flattens the position clears the latch immediately.
	losses.AddFill(risk.Fill{Symbol: "55555.HK", IsBuy: false, Price: 0.3, Quantity: 10000})
	g.check("55555.HK", signal.ActionSellCall)
	if _, armed := g.fired["55555.HK"]; armed {
		t.Fatal("flat position must clear the guard latch")
	}
}

func TestLossGuardIgnoresHealthyPosition(t *testing.T) {
	losses := risk.NewUnrealizedLossTracker()
	losses.Seed("55555.HK", []risk.Fill{
		{Symbol: "55555.HK", IsBuy: true, Price: 0.5, Quantity: 10000},
	})
	quotes := cache.NewQuoteCache()
	quotes.Set("55555.HK", 0.48) // paper loss -200, inside ceiling

	sellQueue := NewTaskQueue(10)
	g := NewLossGuard(testOrderConfig(), risk.Config{MaxDailyLoss: 1000},
		losses, sellQueue, quotes, nil, time.Second)

	g.check("55555.HK", signal.ActionSellCall)
	select {
	case <-sellQueue.ch:
		t.Fatal("healthy position must not trigger liquidation")
	default:
	}
}
