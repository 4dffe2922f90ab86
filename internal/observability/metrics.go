package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total number of control API requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "Control API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_ws_active_connections",
			Help: "Number of live event-stream connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_ws_events_total",
			Help: "Total number of connection lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	reconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Total number of reconnect attempts.",
		},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_session_state",
			Help: "1 for the current connection state, 0 otherwise.",
		},
		[]string{"state"},
	)
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_inbound_events_total",
			Help: "Total number of inbound events by kind and result.",
		},
		[]string{"type", "result"},
	)
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_intents_total",
			Help: "Total number of outbound intents by kind and result.",
		},
		[]string{"intent", "result"},
	)
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_jobs_total",
			Help: "Total number of correlated jobs by outcome.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

var knownStates = []string{"idle", "connecting", "connected", "reconnecting", "disconnected", "failed"}

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		reconnectAttemptsTotal,
		sessionState,
		inboundEventsTotal,
		intentsTotal,
		jobsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncReconnectAttempt() {
	reconnectAttemptsTotal.Inc()
}

// SetSessionState flags state as the current one.
func SetSessionState(state string) {
	for _, s := range knownStates {
		value := 0.0
		if s == state {
			value = 1
		}
		sessionState.WithLabelValues(s).Set(value)
	}
}

func IncInboundEvent(eventType, result string) {
	if eventType == "" {
		eventType = "invalid"
	}
	inboundEventsTotal.WithLabelValues(eventType, result).Inc()
}

func IncIntent(intent, result string) {
	intentsTotal.WithLabelValues(intent, result).Inc()
}

func IncJobOutcome(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
