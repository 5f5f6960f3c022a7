package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomsync_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomsync_events_published_total",
			Help: "Sync events fanned out, by event type",
		},
		[]string{"type"},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomsync_transport_errors_total",
			Help: "Failed event deliveries, by transport",
		},
		[]string{"transport"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomsync_websocket_connections",
			Help: "Currently connected push clients",
		},
	)

	SlowClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomsync_slow_clients_dropped_total",
			Help: "Push clients disconnected because their send buffer was full",
		},
	)

	CASRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomsync_cas_retries_total",
			Help: "Optimistic concurrency retries, by entity",
		},
		[]string{"entity"},
	)

	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomsync_messages_created_total",
			Help: "Messages appended, by type",
		},
		[]string{"type"},
	)

	PresenceExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomsync_presence_expired_total",
			Help: "Presence records removed by the sweeper",
		},
	)
)
