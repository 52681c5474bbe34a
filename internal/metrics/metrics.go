package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaty_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Real-time metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaty_ws_connections_active",
			Help: "Open websocket connections",
		},
	)

	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaty_users_online",
			Help: "Users with at least one open connection on this node",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_inbound_events_total",
			Help: "Inbound socket events by name and outcome",
		},
		[]string{"event", "outcome"}, // outcome: ok, invalid, unauthorized, error
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_broadcasts_total",
			Help: "Outbound events fanned out by room scope",
		},
		[]string{"scope"},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chaty_dropped_frames_total",
			Help: "Outbound frames dropped because a client buffer was full or closed",
		},
	)

	ActiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaty_active_calls",
			Help: "Calls in ringing or answered state",
		},
	)

	// Infrastructure metrics
	CacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_cache_results_total",
			Help: "Cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_push_notifications_total",
			Help: "Push deliveries by outcome",
		},
		[]string{"outcome"},
	)

	DetachedTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaty_detached_tasks_total",
			Help: "Fire-and-forget tasks by name and outcome",
		},
		[]string{"task", "outcome"},
	)
)
