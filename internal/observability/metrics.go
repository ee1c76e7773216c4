package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alumnet_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of active WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alumnet_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// NotificationsPublished counts emitted notifications by event kind and outcome.
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_notifications_published_total",
		Help: "Total number of notifications published by event kind",
	}, []string{"kind", "outcome"})

	// FriendRequestsTotal counts friendship state machine transitions.
	FriendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_friend_requests_total",
		Help: "Total number of friendship transitions by action",
	}, []string{"action"})

	// MessagesTotal counts chat messages by outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_messages_total",
		Help: "Total number of chat messages processed by outcome",
	}, []string{"outcome"})

	// PresenceOnlineUsers is the gauge of users currently considered online.
	PresenceOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alumnet_presence_online_users",
		Help: "Number of users currently online, away or busy",
	})

	// PresenceSweepsTotal counts background presence sweeps and expired records.
	PresenceSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alumnet_presence_sweeps_total",
		Help: "Total number of presence sweep runs by result",
	}, []string{"result"})
)

// DatabaseMetrics records query latency for repository operations.
type DatabaseMetrics struct{}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics() *DatabaseMetrics {
	return &DatabaseMetrics{}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
