package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsechat_tokens_issued_total",
			Help: "Total session tokens issued",
		},
	)

	ChannelsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsechat_channels_resolved_total",
			Help: "Total direct channel resolutions",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsechat_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	// Event stream
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsechat_ws_connections",
			Help: "Open event stream connections",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsechat_ws_events_dropped_total",
			Help: "Events dropped because a client buffer was full",
		},
	)
)
