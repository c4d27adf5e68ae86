package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warrant-trader/internal/api"
	"warrant-trader/internal/audit"
	"warrant-trader/internal/events"
	"warrant-trader/internal/indicators"
	"warrant-trader/internal/market"
	"warrant-trader/internal/metrics"
	"warrant-trader/internal/order"
	"warrant-trader/internal/risk"
	sig "warrant-trader/internal/signal"
	"warrant-trader/internal/strategy"
	"warrant-trader/internal/verifier"
	"warrant-trader/pkg/broker"
	"warrant-trader/pkg/broker/longport"
	"warrant-trader/pkg/cache"
	"warrant-trader/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	trading, err := config.LoadTrading(cfg.TradingConfigPath)
	if err != nil {
		log.Fatalf("trading config load failed: %v", err)
	}
	log.Printf("config loaded: monitor=%s long=%s short=%s port=%s",
		trading.MonitorSymbol, trading.LongWarrant.Symbol, trading.ShortWarrant.Symbol, cfg.Port)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("timezone %q not found, using local: %v", cfg.Timezone, err)
		loc = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	trail, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Printf("audit trail unavailable, decisions will not be recorded: %v", err)
		trail = nil
	} else {
		defer trail.Close()
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	// Brokerage
	client := longport.New(longport.Config{
		BaseURL:     cfg.LongportBaseURL,
		PushURL:     cfg.LongportPushURL,
		AppKey:      cfg.LongportAppKey,
		AppSecret:   cfg.LongportAppSecret,
		AccessToken: cfg.LongportAccessToken,
	})

	quotes := cache.NewQuoteCache()
	indCache := indicators.NewCache(5 * time.Minute)
	limiter := broker.NewRateLimiter(cfg.TradeCallsPerWindow,
		time.Duration(cfg.TradeWindowSeconds)*time.Second, 500*time.Millisecond)
	limiter.OnWait(func(time.Duration) { metrics.RateLimitWaits.Inc() })
	orderCache := broker.NewPendingOrderCache(2 * time.Second)

	// Risk state
	losses := risk.NewUnrealizedLossTracker()
	cooldowns := risk.NewCooldownTracker(loc)
	checker := risk.NewChecker(trading.Risk, losses)
	freqGate := risk.NewFrequencyGate(time.Duration(trading.BuyIntervalSeconds) * time.Second)

	warrants := map[string]*risk.WarrantInfo{
		trading.LongWarrant.Symbol: {
			Symbol:    trading.LongWarrant.Symbol,
			Kind:      risk.WarrantKind(trading.LongWarrant.Kind),
			CallPrice: trading.LongWarrant.CallPrice,
		},
		trading.ShortWarrant.Symbol: {
			Symbol:    trading.ShortWarrant.Symbol,
			Kind:      risk.WarrantKind(trading.ShortWarrant.Kind),
			CallPrice: trading.ShortWarrant.CallPrice,
		},
	}

	// Execution
	orderCfg := order.Config{
		MonitorSymbol:       trading.MonitorSymbol,
		LongSymbol:          trading.LongWarrant.Symbol,
		ShortSymbol:         trading.ShortWarrant.Symbol,
		LongLot:             trading.LongWarrant.LotSize,
		ShortLot:            trading.ShortWarrant.LotSize,
		BuyNotional:         trading.BuyNotional,
		NormalOrderType:     broker.OrderType(trading.NormalOrderType),
		ProtectiveOrderType: broker.OrderType(trading.ProtectiveOrderType),
		QuoteMaxAge:         10 * time.Second,
		Cooldown:            trading.Cooldown,
	}
	deps := order.Deps{
		Trader:     client,
		Limiter:    limiter,
		OrderCache: orderCache,
		Checker:    checker,
		Quotes:     quotes,
		Bus:        bus,
		Audit:      trail,
		WarrantFor: func(symbol string) *risk.WarrantInfo { return warrants[symbol] },
	}

	// Rebuild in-memory state from today's orders before trading.
	if err := order.RebuildState(ctx, client, orderCfg, losses, cooldowns); err != nil {
		log.Printf("state rebuild failed, starting with empty ledgers: %v", err)
	}

	buyQueue := order.NewTaskQueue(200)
	sellQueue := order.NewTaskQueue(200)
	buyProc := order.NewBuyProcessor(orderCfg, deps, buyQueue, freqGate, cooldowns)
	sellProc := order.NewSellProcessor(orderCfg, deps, sellQueue)
	go buyProc.Run(ctx)
	go sellProc.Run(ctx)

	monitor := order.NewMonitor(orderCfg, deps, losses, cooldowns, 2*time.Second)
	go monitor.Run(ctx)

	// Every submission wakes the price-chasing loop.
	submittedSub, unsubSubmitted := bus.Subscribe(events.EventOrderSubmitted, 100)
	defer unsubSubmitted()
	go func() {
		for range submittedSub {
			monitor.Arm()
		}
	}()

	guard := order.NewLossGuard(orderCfg, trading.Risk, losses, sellQueue, quotes, bus, 3*time.Second)
	go guard.Run(ctx)

	// Push channel feeds fills back into the ledgers.
	go func() {
		statusCh, stop, err := client.SubscribeOrderStatus(ctx)
		if err != nil {
			log.Printf("order push subscription failed: %v", err)
			return
		}
		defer stop()
		for ev := range statusCh {
			monitor.HandleStatusEvent(ev)
		}
	}()

	// Verification
	vcfg := verifier.Config{
		BuyDelaySeconds:  trading.Verification.BuyDelaySeconds,
		SellDelaySeconds: trading.Verification.SellDelaySeconds,
		BuyIndicators:    trading.Verification.BuyIndicators,
		SellIndicators:   trading.Verification.SellIndicators,
		ScanInterval:     500 * time.Millisecond,
	}
	verif := verifier.New(vcfg, indCache, bus)
	verif.OnVerified(func(s *sig.Signal, monitorSymbol string) {
		metrics.SignalsVerified.WithLabelValues(string(s.Action)).Inc()
		task := order.Task{Signal: s, MonitorSymbol: monitorSymbol}
		var ok bool
		if s.Action.IsBuy() {
			ok = buyQueue.Enqueue(task)
		} else {
			ok = sellQueue.Enqueue(task)
		}
		if !ok {
			log.Printf("lane saturated, dropping verified %s %s", s.Symbol, s.Action)
			s.Release()
		}
	})
	verif.Start(ctx)
	defer verif.Destroy()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.PendingVerifications.Set(float64(verif.PendingCount()))
			}
		}
	}()

	// Market data (mock first, real later)
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Cache:         quotes,
			Indicators:    indCache,
			Bus:           bus,
			MonitorSymbol: trading.MonitorSymbol,
			Interval:      time.Duration(cfg.QuotePollMs) * time.Millisecond,
		}
		mock.Start(ctx)
		log.Println("mock feed started")
	} else {
		feed := market.Feed{
			Quotes:        client,
			Cache:         quotes,
			Indicators:    indCache,
			Bus:           bus,
			MonitorSymbol: trading.MonitorSymbol,
			WarrantSymbols: []string{
				trading.LongWarrant.Symbol,
				trading.ShortWarrant.Symbol,
			},
			Interval: time.Duration(cfg.QuotePollMs) * time.Millisecond,
		}
		feed.Start(ctx)
		log.Println("quote feed started")
	}

	// Strategies
	engine := strategy.NewEngine(trading.MonitorSymbol,
		trading.LongWarrant.Symbol, trading.ShortWarrant.Symbol,
		func(s *sig.Signal, monitorSymbol string) error {
			return verif.Add(s, monitorSymbol)
		})
	stratConfigs, err := strategy.LoadConfig(cfg.StrategiesConfigPath)
	if err != nil {
		log.Printf("strategy config load failed, running without strategies: %v", err)
	} else {
		built, err := strategy.Build(stratConfigs)
		if err != nil {
			log.Fatalf("strategy build failed: %v", err)
		}
		for _, s := range built {
			engine.Add(s)
			log.Printf("strategy loaded: %s (%s)", s.ID(), s.Name())
		}
	}
	tickStream, unsubTicks := bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	engine.Start(ctx, tickStream)

	// API
	server := api.NewServer(api.Deps{
		Bus:       bus,
		Verifier:  verif,
		BuyQueue:  buyQueue,
		SellQueue: sellQueue,
		Trader:    client,
		Quotes:    quotes,
		Audit:     trail,
		Losses:    losses,
		Cooldowns: cooldowns,
		RiskCfg:   trading.Risk,
		Symbols: []string{
			trading.LongWarrant.Symbol,
			trading.ShortWarrant.Symbol,
		},
		JWTSecret: cfg.JWTSecret,
		APIKey:    cfg.APIKey,
		Registry:  reg,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}
