package api

import (
	"time"

	"warrant-trader/internal/audit"
	"warrant-trader/internal/events"
	"warrant-trader/internal/order"
	"warrant-trader/internal/risk"
	"warrant-trader/internal/verifier"
	"warrant-trader/pkg/broker"
	"warrant-trader/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the trader's operator surface over HTTP.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Verifier  *verifier.Verifier
	BuyQueue  *order.TaskQueue
	SellQueue *order.TaskQueue
	Trader    broker.Trader
	Quotes    *cache.QuoteCache
	Audit     *audit.Trail
	Losses    *risk.UnrealizedLossTracker
	Cooldowns *risk.CooldownTracker
	RiskCfg   risk.Config
	Symbols   []string
	JWTSecret string
	APIKey    string
}

// Deps collects everything the server reads from or feeds into.
type Deps struct {
	Bus       *events.Bus
	Verifier  *verifier.Verifier
	BuyQueue  *order.TaskQueue
	SellQueue *order.TaskQueue
	Trader    broker.Trader
	Quotes    *cache.QuoteCache
	Audit     *audit.Trail
	Losses    *risk.UnrealizedLossTracker
	Cooldowns *risk.CooldownTracker
	RiskCfg   risk.Config
	Symbols   []string
	JWTSecret string
	APIKey    string
	Registry  *prometheus.Registry
}

func NewServer(d Deps) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       d.Bus,
		Verifier:  d.Verifier,
		BuyQueue:  d.BuyQueue,
		SellQueue: d.SellQueue,
		Trader:    d.Trader,
		Quotes:    d.Quotes,
		Audit:     d.Audit,
		Losses:    d.Losses,
		Cooldowns: d.Cooldowns,
		RiskCfg:   d.RiskCfg,
		Symbols:   d.Symbols,
		JWTSecret: d.JWTSecret,
		APIKey:    d.APIKey,
	}
	s.routes(d.Registry)
	return s
}

func (s *Server) routes(reg *prometheus.Registry) {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if reg != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/orders", s.getPendingOrders)
			protected.GET("/orders/today", s.getTodayOrders)
			protected.GET("/positions", s.getPositions)
			protected.GET("/account", s.getAccount)
			protected.GET("/quotes", s.getQuotes)
			protected.GET("/risk", s.getRiskState)
			protected.GET("/audit", s.getAuditTrail)

			protected.POST("/signals", s.postSignal)
			protected.POST("/verifications/cancel", s.cancelVerifications)
		}
	}
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
