// Package metrics wires Server's lifecycle events into Prometheus
// counters and gauges, grounded on the teacher's pkg/metrics/prometheus
// instrumentation style: one struct holding pre-registered collectors,
// built once and passed in wherever it's needed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the Prometheus instruments a Server reports through.
// The zero value is not usable; build one with New, which also registers
// it with a prometheus.Registerer. A nil *Collector is safe to call and
// records nothing.
type Collector struct {
	AcceptedTotal   prometheus.Counter
	ActiveSessions  prometheus.Gauge
	AcceptErrors    prometheus.Gauge
	RespReconnects  prometheus.Counter
}

// New creates a Collector with the given namespace (e.g. "asyncnet")
// registered against reg. Pass prometheus.DefaultRegisterer to use the
// global registry.
func New(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		AcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accepted_connections_total",
			Help:      "Total connections accepted by the server event loop.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_sessions",
			Help:      "Connections currently open.",
		}),
		AcceptErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accept_error_streak",
			Help:      "Consecutive accept failures since the last successful accept.",
		}),
		RespReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resp_client",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts made by RESP clients.",
		}),
	}
	reg.MustRegister(c.AcceptedTotal, c.ActiveSessions, c.AcceptErrors, c.RespReconnects)
	return c
}

// ConnectionAccepted records a newly accepted connection.
func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.AcceptedTotal.Inc()
	c.ActiveSessions.Inc()
}

// ConnectionClosed records a connection leaving the active set.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

// SetAcceptErrorStreak reports the server's current consecutive-failure
// count, reset to zero on every successful accept.
func (c *Collector) SetAcceptErrorStreak(n int) {
	if c == nil {
		return
	}
	c.AcceptErrors.Set(float64(n))
}

// RespReconnect records one RESP client reconnect attempt.
func (c *Collector) RespReconnect() {
	if c == nil {
		return
	}
	c.RespReconnects.Inc()
}
