// Package metrics exposes Prometheus instrumentation for the trading
// pipeline, served at /metrics by the status API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SignalsVerified counts signals that passed delayed verification.
	SignalsVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_verified_total",
			Help: "Signals that passed delayed verification",
		},
		[]string{"action"},
	)

	// SignalsRejected counts rejections split by the gate that fired.
	SignalsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_rejected_total",
			Help: "Signals rejected, split by gate",
		},
		[]string{"gate"},
	)

	// OrdersSubmitted counts orders sent to the brokerage.
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_submitted_total",
			Help: "Orders submitted to the brokerage",
		},
		[]string{"side"},
	)

	// OrdersReplaced counts price-chase replacements.
	OrdersReplaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_orders_replaced_total",
			Help: "Pending buy orders replaced to chase the market down",
		},
	)

	// OrdersFilled counts fills observed on the push channel.
	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_filled_total",
			Help: "Order fills observed via push notification",
		},
		[]string{"side"},
	)

	// RateLimitWaits counts throttle sleeps at the trade-call window.
	RateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_ratelimit_waits_total",
			Help: "Times a trade call waited for the sliding window",
		},
	)

	// PendingVerifications gauges in-flight verification entries.
	PendingVerifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_pending_verifications",
			Help: "Signals currently held for delayed verification",
		},
	)

	// APIRequests counts status API requests by route and outcome.
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_api_requests_total",
			Help: "Status API requests by method, route and status code",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration tracks status API latency per route.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_api_request_duration_seconds",
			Help:    "Status API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIRateLimited counts requests refused by the per-IP throttle.
	APIRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_api_rate_limited_total",
			Help: "Status API requests refused by the per-IP rate limit",
		},
	)
)

// Register installs all collectors on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SignalsVerified,
		SignalsRejected,
		OrdersSubmitted,
		OrdersReplaced,
		OrdersFilled,
		RateLimitWaits,
		PendingVerifications,
		APIRequests,
		APIRequestDuration,
		APIRateLimited,
	)
}
