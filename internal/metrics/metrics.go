// Package metrics provides Prometheus instrumentation for Mural.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mural_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mural_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Space persistence metrics.
var (
	SpaceSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mural_space_saves_total",
		Help: "Total number of space save operations.",
	}, []string{"result"})

	SpaceLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mural_space_loads_total",
		Help: "Total number of space load operations.",
	}, []string{"result"})
)

// Agent bridge metrics.
var (
	AgentTurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mural_agent_turns_total",
		Help: "Total number of agent conversation turns started.",
	})

	AgentAssetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mural_agent_assets_total",
		Help: "Total number of generated asset files announced to clients.",
	})
)

// WebSocket metrics.
var (
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mural_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	WSFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mural_ws_frames_total",
		Help: "Total number of WebSocket frames by direction.",
	}, []string{"direction"})
)
