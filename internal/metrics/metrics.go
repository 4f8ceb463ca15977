// Package metrics wraps the prometheus collectors for the pgbridge
// toolkit: command execution outcomes, bulk-copy volume, and notification
// listener activity, plus a gauge set mirroring the pool bookkeeping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors. All observation methods are
// nil-safe so components can run without a metrics sink.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal      *prometheus.CounterVec
	rollbacksTotal     prometheus.Counter
	copyRowsTotal      prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	waitTimeoutsTotal  *prometheus.CounterVec
	callbackFailures   *prometheus.CounterVec
	poolRebuildsTotal  prometheus.Counter
}

// New creates a Metrics set registered on a fresh registry under the given
// namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of executed commands by outcome",
			},
			[]string{"outcome"},
		),
		rollbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of rollback attempts after failed commands",
			},
		),
		copyRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "copy_rows_total",
				Help:      "Total number of rows loaded through the bulk copy path",
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of notifications delivered to callbacks",
			},
			[]string{"channel"},
		),
		waitTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wait_timeouts_total",
				Help:      "Total number of idle wait timeouts in the listener loop",
			},
			[]string{"channel"},
		),
		callbackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_failures_total",
				Help:      "Total number of swallowed callback failures",
			},
			[]string{"channel"},
		),
		poolRebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_rebuilds_total",
				Help:      "Total number of whole-pool rebuilds triggered by dead connections",
			},
		),
	}

	registry.MustRegister(
		m.commandsTotal,
		m.rollbacksTotal,
		m.copyRowsTotal,
		m.notificationsTotal,
		m.waitTimeoutsTotal,
		m.callbackFailures,
		m.poolRebuildsTotal,
	)
	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPoolStats registers a gauge set backed by the given snapshot
// function, typically Pool.Stat.
func (m *Metrics) RegisterPoolStats(namespace string, stat func() (acquired, idle, total, max int32)) {
	if m == nil || stat == nil {
		return
	}
	gauge := func(name, help string, pick func(a, i, t, x int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			a, i, t, x := stat()
			return float64(pick(a, i, t, x))
		})
	}
	m.registry.MustRegister(
		gauge("pool_acquired_conns", "Connections currently checked out", func(a, _, _, _ int32) int32 { return a }),
		gauge("pool_idle_conns", "Idle connections in the pool", func(_, i, _, _ int32) int32 { return i }),
		gauge("pool_total_conns", "Total connections tracked by the pool", func(_, _, t, _ int32) int32 { return t }),
		gauge("pool_max_conns", "Configured pool capacity", func(_, _, _, x int32) int32 { return x }),
	)
}

// ObserveCommand records one executed command with the given outcome
// ("ok" or "error").
func (m *Metrics) ObserveCommand(outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRollback records one rollback attempt.
func (m *Metrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacksTotal.Inc()
}

// ObserveCopyRows records rows loaded through the bulk path.
func (m *Metrics) ObserveCopyRows(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.copyRowsTotal.Add(float64(n))
}

// ObserveNotification records one delivered notification.
func (m *Metrics) ObserveNotification(channel string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel).Inc()
}

// ObserveWaitTimeout records one idle wait timeout.
func (m *Metrics) ObserveWaitTimeout(channel string) {
	if m == nil {
		return
	}
	m.waitTimeoutsTotal.WithLabelValues(channel).Inc()
}

// ObserveCallbackFailure records one swallowed callback failure.
func (m *Metrics) ObserveCallbackFailure(channel string) {
	if m == nil {
		return
	}
	m.callbackFailures.WithLabelValues(channel).Inc()
}

// ObservePoolRebuild records one whole-pool rebuild.
func (m *Metrics) ObservePoolRebuild() {
	if m == nil {
		return
	}
	m.poolRebuildsTotal.Inc()
}
