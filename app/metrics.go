package app

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests received.",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)

	creditsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otouri_credits_consumed_total",
			Help: "Credits consumed by paid actions.",
		},
		[]string{"action"},
	)

	creditRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otouri_credit_rejections_total",
			Help: "Paid actions rejected by the credit gate.",
		},
		[]string{"action", "reason"},
	)

	creditRefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otouri_credit_refunds_total",
			Help: "Credits returned after a provider failure.",
		},
		[]string{"action"},
	)

	billingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otouri_billing_events_total",
			Help: "Billing webhook events by type and reconcile result.",
		},
		[]string{"type", "result"},
	)

	notificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otouri_notifications_created_total",
			Help: "Notifications written, by source.",
		},
		[]string{"source"},
	)
)

// prometheusMiddleware records request count and latency per route pattern.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// FullPath is the route pattern, so ids do not explode label cardinality.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, code).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, code).Observe(time.Since(start).Seconds())
	}
}
