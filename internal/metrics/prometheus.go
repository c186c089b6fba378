package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a checking run
type Metrics struct {
	// Exploration metrics
	StatesTotal       prometheus.Counter
	UniqueStatesTotal prometheus.Gauge
	MaxDepth          prometheus.Gauge
	ActionsTotal      *prometheus.CounterVec

	// Verdict metrics
	ViolationsTotal *prometheus.CounterVec

	// Simulation metrics
	RolloutsTotal prometheus.Counter
	RolloutDepth  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(mode string) *Metrics {
	labels := prometheus.Labels{"mode": mode}

	return &Metrics{
		StatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "clustercheck",
			Subsystem:   "engine",
			Name:        "states_total",
			Help:        "Total number of states generated during exploration",
			ConstLabels: labels,
		}),
		UniqueStatesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "clustercheck",
			Subsystem:   "engine",
			Name:        "unique_states_total",
			Help:        "Number of unique states in the visited set",
			ConstLabels: labels,
		}),
		MaxDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "clustercheck",
			Subsystem:   "engine",
			Name:        "max_depth",
			Help:        "Maximum exploration depth reached",
			ConstLabels: labels,
		}),
		ActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clustercheck",
			Subsystem:   "engine",
			Name:        "actions_total",
			Help:        "Total number of actions applied by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		ViolationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clustercheck",
			Subsystem:   "engine",
			Name:        "violations_total",
			Help:        "Total number of property violations found by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		RolloutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "clustercheck",
			Subsystem:   "simulation",
			Name:        "rollouts_total",
			Help:        "Total number of simulation rollouts executed",
			ConstLabels: labels,
		}),
		RolloutDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "clustercheck",
			Subsystem:   "simulation",
			Name:        "rollout_depth",
			Help:        "Histogram of steps taken per rollout",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(8, 2, 8),
		}),
	}
}

// RecordAction records one applied action
func (m *Metrics) RecordAction(kind string) {
	if m == nil {
		return
	}
	m.StatesTotal.Inc()
	m.ActionsTotal.WithLabelValues(kind).Inc()
}

// RecordUnique updates the unique-state gauge
func (m *Metrics) RecordUnique(n int) {
	if m == nil {
		return
	}
	m.UniqueStatesTotal.Set(float64(n))
}

// RecordDepth updates the max-depth gauge
func (m *Metrics) RecordDepth(depth int) {
	if m == nil {
		return
	}
	m.MaxDepth.Set(float64(depth))
}

// RecordViolation records a discovered property violation
func (m *Metrics) RecordViolation(kind string) {
	if m == nil {
		return
	}
	m.ViolationsTotal.WithLabelValues(kind).Inc()
}

// RecordRollout records one completed simulation rollout
func (m *Metrics) RecordRollout(depth int) {
	if m == nil {
		return
	}
	m.RolloutsTotal.Inc()
	m.RolloutDepth.Observe(float64(depth))
}
