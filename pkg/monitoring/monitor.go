package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// CheckoutTransitions 购买状态流转次数
	CheckoutTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Purchase attempt state transitions",
		},
		[]string{"to"},
	)

	GatewayNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Payment gateway notifications by processing result",
		},
		[]string{"result"},
	)

	Redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambassador_redemptions_total",
			Help: "Ambassador reward redemptions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// MediaCleanup result: deleted / retried / dead_letter
	MediaCleanup = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cleanup_total",
			Help: "Media cleanup job outcomes",
		},
		[]string{"result"},
	)

	EligibilityCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibility_cache_total",
			Help: "Eligibility cache lookups",
		},
		[]string{"result"},
	)

	DBUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "database_up",
		Help: "1 when the last database ping succeeded",
	})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			CheckoutTransitions,
			GatewayNotifications,
			Redemptions,
			MediaCleanup,
			EligibilityCache,
			DBUp,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
