package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"warrant-trader/internal/metrics"
)

// ipThrottle hands out one token-bucket limiter per client IP and
// evicts entries not seen for idleTTL, so the map stays bounded without
// ever resetting an active client's bucket.
type ipThrottle struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPThrottle(perSecond rate.Limit, burst int, idleTTL time.Duration) *ipThrottle {
	return &ipThrottle{
		visitors:  make(map[string]*visitor),
		perSecond: perSecond,
		burst:     burst,
		idleTTL:   idleTTL,
		lastSweep: time.Now(),
	}
}

// allow reports whether the IP may proceed right now.
func (t *ipThrottle) allow(ip string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > t.idleTTL {
		for ip, v := range t.visitors {
			if now.Sub(v.lastSeen) > t.idleTTL {
				delete(t.visitors, ip)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.perSecond, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

var apiThrottle = newIPThrottle(rate.Limit(20), 50, 5*time.Minute)

// RequestIDMiddleware tags each request with an ID, honoring one the
// client already sent so traces line up across hops.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("RequestID", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger logs every request and feeds the API counters and
// latency histogram. The route template, not the raw path, labels the
// metrics so parameterized routes do not explode the cardinality.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		id := c.GetString("RequestID")
		if len(id) > 8 {
			id = id[:8]
		}
		log.Printf("[API] %s | %s %s | %d | %v | %s",
			id, method, path, status, latency, c.ClientIP())
	}
}

// RateLimitMiddleware refuses clients that exceed the per-IP budget.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !apiThrottle.allow(ip) {
			metrics.APIRateLimited.Inc()
			log.Printf("[RATE_LIMIT] IP %s exceeded rate limit", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}

// TimeoutMiddleware bounds handler time. The handler runs in its own
// goroutine; whichever of completion, panic or deadline wins decides
// the response.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case p := <-panicked:
			log.Printf("[API] handler panic: %v", p)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
		case <-ctx.Done():
			log.Printf("[TIMEOUT] Request timeout: %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"message": "request took too long to process",
			})
		}
	}
}

// CORSMiddleware answers preflight requests and opens the status API to
// browser dashboards.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, Cache-Control")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
