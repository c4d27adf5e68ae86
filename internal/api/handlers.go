package api

import (
	"net/http"
	"strconv"

	"warrant-trader/internal/signal"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getPendingOrders(c *gin.Context) {
	orders, err := s.Trader.GetPendingOrders(c.Request.Context(), s.Symbols)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getTodayOrders(c *gin.Context) {
	orders, err := s.Trader.GetTodayOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Trader.GetStockPositions(c.Request.Context(), s.Symbols)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) getAccount(c *gin.Context) {
	account, err := s.Trader.GetAccountSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (s *Server) getQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quotes": s.Quotes.Snapshot()})
}

// getRiskState reports configured limits plus the live loss and
// cooldown trackers in one payload.
func (s *Server) getRiskState(c *gin.Context) {
	losses := make([]any, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		if rec, ok := s.Losses.Record(sym); ok {
			losses = append(losses, rec)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"limits":                s.RiskCfg,
		"unrealized":            losses,
		"cooldowns":             s.Cooldowns.Records(),
		"pending_verifications": s.Verifier.PendingCount(),
	})
}

func (s *Server) getAuditTrail(c *gin.Context) {
	n := 100
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			n = parsed
		}
	}
	if s.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "AUDIT_UNAVAILABLE",
			"error": "audit trail is not recording",
		})
		return
	}
	decisions, err := s.Audit.Recent(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// postSignal accepts an external trading intent and hands it to the
// verifier. This is the manual entry point; the market feed produces
// signals through the same path internally.
func (s *Server) postSignal(c *gin.Context) {
	var req struct {
		Symbol     string             `json:"symbol"`
		Action     string             `json:"action"`
		Reason     string             `json:"reason"`
		Price      float64            `json:"price"`
		Quantity   int64              `json:"quantity"`
		Indicators map[string]float64 `json:"indicators"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	action := signal.Action(req.Action)
	switch action {
	case signal.ActionBuyCall, signal.ActionSellCall, signal.ActionBuyPut, signal.ActionSellPut:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_ACTION",
			"error": "unknown action " + req.Action,
		})
		return
	}

	sig := signal.New(req.Symbol, action, req.Reason)
	sig.Price = req.Price
	sig.Quantity = req.Quantity
	sig.Indicators = req.Indicators

	if err := s.Verifier.Add(sig, req.Symbol); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"code":  "SIGNAL_REJECTED",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"identity": sig.Identity()})
}

// cancelVerifications drops pending verifications by symbol or by
// direction. Exactly one selector must be supplied.
func (s *Server) cancelVerifications(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol"`
		Direction string `json:"direction"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	var cancelled int
	switch {
	case req.Symbol != "" && req.Direction == "":
		cancelled = s.Verifier.CancelAllForSymbol(req.Symbol)
	case req.Direction != "" && req.Symbol == "":
		cancelled = s.Verifier.CancelAllForDirection(signal.Direction(req.Direction))
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_SELECTOR",
			"error": "provide exactly one of symbol or direction",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}
