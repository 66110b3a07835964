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
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket feeds.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_snapshots_total",
			Help: "Snapshots handled by live subscriptions.",
		},
		[]string{"kind", "outcome"},
	)
	staleSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stale_snapshots_discarded_total",
			Help: "Enriched chat lists dropped because a newer snapshot had already been delivered.",
		},
	)
	enrichmentFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_enrichment_failures_total",
			Help: "Counterpart profile lookups that failed and fell back to placeholders.",
		},
	)
	profileCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_profile_cache_total",
			Help: "Profile cache lookups by result.",
		},
		[]string{"result"},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages accepted by the message stream.",
		},
	)
	chatsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_chats_created_total",
			Help: "Chats created by the chat directory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		snapshotsTotal,
		staleSnapshotsTotal,
		enrichmentFailuresTotal,
		profileCacheTotal,
		messagesSentTotal,
		chatsCreatedTotal,
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

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

// IncSnapshot counts a snapshot of kind ("chats" or "messages") by outcome
// ("delivered", "failed").
func IncSnapshot(kind, outcome string) {
	snapshotsTotal.WithLabelValues(kind, outcome).Inc()
}

func IncStaleSnapshot() {
	staleSnapshotsTotal.Inc()
}

func IncEnrichmentFailure() {
	enrichmentFailuresTotal.Inc()
}

func IncProfileCache(result string) {
	profileCacheTotal.WithLabelValues(result).Inc()
}

func IncMessageSent() {
	messagesSentTotal.Inc()
}

func IncChatCreated() {
	chatsCreatedTotal.Inc()
}
