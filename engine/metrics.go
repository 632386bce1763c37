package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible counters and histograms for the
// Runner, ported from the teacher's PrometheusMetrics (same namespace/
// promauto construction pattern, domain-specific label/metric set).
type Metrics struct {
	nodeLatency   *prometheus.HistogramVec
	nodeFailures  *prometheus.CounterVec
	executionCost prometheus.Histogram
	activeRuns    prometheus.Gauge
	enabled       bool
}

// NewMetrics registers the Runner's metrics with registry. A nil registry
// uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adworkflow",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_type", "status"}),
		nodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adworkflow",
			Name:      "node_failures_total",
			Help:      "Cumulative count of node executions that ended FAILED",
		}, []string{"node_type"}),
		executionCost: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adworkflow",
			Name:      "execution_cost_usd",
			Help:      "Total accumulated cost of a completed execution, in US dollars",
			Buckets:   []float64{0, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "adworkflow",
			Name:      "active_executions",
			Help:      "Number of executions currently RUNNING",
		}),
	}
}

// RecordNodeLatency observes a node's dispatch duration.
func (m *Metrics) RecordNodeLatency(nodeType NodeType, status string, d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.nodeLatency.WithLabelValues(string(nodeType), status).Observe(float64(d.Milliseconds()))
}

// IncrementNodeFailures increments the failure counter for nodeType.
func (m *Metrics) IncrementNodeFailures(nodeType NodeType) {
	if m == nil || !m.enabled {
		return
	}
	m.nodeFailures.WithLabelValues(string(nodeType)).Inc()
}

// RecordExecutionCost observes a completed execution's total cost.
func (m *Metrics) RecordExecutionCost(cost float64) {
	if m == nil || !m.enabled {
		return
	}
	m.executionCost.Observe(cost)
}

// SetActiveRuns sets the current count of RUNNING executions.
func (m *Metrics) SetActiveRuns(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.activeRuns.Set(float64(n))
}
