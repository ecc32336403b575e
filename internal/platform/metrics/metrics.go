package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdws_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fdws_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fdws_ws_active_connections",
		Help: "Live websocket connections",
	})

	// SendFailures counts outbound frames dropped because a client buffer was full or closed.
	SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fdws_ws_send_failures_total",
		Help: "Outbound websocket sends that failed",
	})

	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdws_notifications_dispatched_total",
			Help: "Restaurant notifications by dispatch outcome",
		},
		[]string{"outcome"},
	)

	Replayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fdws_notifications_replayed_total",
		Help: "Pending notifications flushed to a joining connection",
	})

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fdws_kafka_messages_total",
			Help: "Kafka messages consumed by topic and handler result",
		},
		[]string{"topic", "status"},
	)
)

var initOnce sync.Once

// Init registers the collectors on the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCount, RequestDuration, ActiveConnections, SendFailures, Dispatches, Replayed, KafkaMessages)
	})
}

// Middleware records request count and latency labelled by the route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			RequestCount.WithLabelValues(path, method, strconv.Itoa(c.Response().Status)).Inc()
			RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler exposes the default registry for GET /metrics.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
