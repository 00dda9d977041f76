package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are kept on a per-server registry so that several servers can
// live in one process (tests do this).
type Metrics struct {
	Registry *prometheus.Registry

	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	Commands       *prometheus.CounterVec
	LinesDelivered prometheus.Counter
	LinesDropped   prometheus.Counter
	NickCollisions prometheus.Counter

	AdminRequests *prometheus.CounterVec
	AdminLatency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sircd_sessions_total",
			Help: "Total number of accepted client sessions",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sircd_sessions_active",
			Help: "Number of client sessions currently open",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sircd_commands_total",
			Help: "Recognized commands by keyword",
		}, []string{"command"}),
		LinesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sircd_lines_delivered_total",
			Help: "Outbound lines accepted into a session queue",
		}),
		LinesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sircd_lines_dropped_total",
			Help: "Outbound lines dropped because a session queue was full",
		}),
		NickCollisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "sircd_nick_collisions_total",
			Help: "NICK requests rejected because the name was taken",
		}),
		AdminRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sircd_admin_requests_total",
			Help: "Admin HTTP requests by route and status code",
		}, []string{"method", "path", "code"}),
		AdminLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sircd_admin_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// hooks attaches the session counters to a server
func (m *Metrics) hooks(r *hookRegistry) {
	r.register(EventConnect, func(ev *Event) error {
		m.SessionsTotal.Inc()
		m.SessionsActive.Inc()
		return nil
	})
	r.register(EventDisconnect, func(ev *Event) error {
		m.SessionsActive.Dec()
		return nil
	})
	r.register(EventCommand, func(ev *Event) error {
		m.Commands.WithLabelValues(ev.Command.String()).Inc()
		return nil
	})
}
