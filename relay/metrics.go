package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus collectors
type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	Registrations *prometheus.CounterVec
	Messages      *prometheus.CounterVec
	HistoryErrors prometheus.Counter
	Dropped       *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "clipsync_relay_connections",
			Help: "Open WebSocket connections",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "clipsync_relay_rooms",
			Help: "Rooms with at least one registered device",
		}),
		Registrations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipsync_relay_registrations_total",
				Help: "Register events by outcome",
			},
			[]string{"result"}, // "ok", "rejected" or "replaced"
		),
		Messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipsync_relay_messages_total",
				Help: "Messages broadcast to rooms",
			},
			[]string{"type", "register"},
		),
		HistoryErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "clipsync_relay_history_errors_total",
			Help: "History backfills that failed",
		}),
		Dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipsync_relay_dropped_total",
				Help: "Frames dropped without delivery",
			},
			[]string{"reason"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipsync_relay_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}
