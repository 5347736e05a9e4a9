package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge/histogram named in spec.md §6's
// "Metrics HTTP endpoint" section.
type Metrics struct {
	EventsTotal           prometheus.Counter
	EventsDroppedTotal    *prometheus.CounterVec // reason
	AlertsTotal           *prometheus.CounterVec // tier
	CompositeScoreBucket  prometheus.Histogram
	WorkerSignalsTotal    *prometheus.CounterVec // worker
	WorkerTimeoutsTotal   *prometheus.CounterVec // worker
	ClusterComponents     prometheus.Gauge
	StateAccounts         prometheus.Gauge
	DispatcherEmissions   *prometheus.CounterVec // sink
}

// NewMetrics registers all collectors against reg and returns the bundle.
// Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer-backed registry in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_total",
			Help: "Total ingested telemetry events.",
		}),
		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped by reason (the store's out_of_order drops; parse errors and shutdown drain are not counted).",
		}, []string{"reason"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_total",
			Help: "Fusion results by tier.",
		}, []string{"tier"}),
		CompositeScoreBucket: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "composite_score_bucket",
			Help:    "Distribution of composite fusion scores.",
			Buckets: []float64{0.35, 0.52, 0.72, 0.85, 1.0},
		}),
		WorkerSignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_signals_total",
			Help: "Signals produced per worker.",
		}, []string{"worker"}),
		WorkerTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_timeouts_total",
			Help: "Worker invocations cancelled for exceeding the per-event budget.",
		}, []string{"worker"}),
		ClusterComponents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cluster_components",
			Help: "Current count of Hydra connected components.",
		}),
		StateAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "state_accounts",
			Help: "Accounts currently tracked in the state store.",
		}),
		DispatcherEmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_emissions_total",
			Help: "Emissions written per sink.",
		}, []string{"sink"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsTotal, m.EventsDroppedTotal, m.AlertsTotal, m.CompositeScoreBucket,
			m.WorkerSignalsTotal, m.WorkerTimeoutsTotal, m.ClusterComponents,
			m.StateAccounts, m.DispatcherEmissions,
		)
	}
	return m
}

// IncEmission implements dispatcher.MetricsSink.
func (m *Metrics) IncEmission(sink string) {
	m.DispatcherEmissions.WithLabelValues(sink).Inc()
}

// IncEventDropped records an ingest drop by reason.
func (m *Metrics) IncEventDropped(reason string) {
	m.EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// IncAlert records one fusion result by tier.
func (m *Metrics) IncAlert(tier string) {
	m.AlertsTotal.WithLabelValues(tier).Inc()
}

// IncWorkerSignal records one completed worker invocation.
func (m *Metrics) IncWorkerSignal(worker string) {
	m.WorkerSignalsTotal.WithLabelValues(worker).Inc()
}

// IncWorkerTimeout records one worker invocation cancelled for
// exceeding the per-event budget.
func (m *Metrics) IncWorkerTimeout(worker string) {
	m.WorkerTimeoutsTotal.WithLabelValues(worker).Inc()
}
