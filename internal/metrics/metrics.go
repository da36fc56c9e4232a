// Package metrics provides Prometheus instrumentation for minet runs.
//
// A run registers its collectors on a private registry and, when asked,
// dumps them to a node-exporter textfile once the network is built. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Benny93/minet-go/internal/graph"
)

// Fetch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	fetchRequests  *prometheus.CounterVec
	fetchRetries   *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	expansionSteps prometheus.Counter
	excluded       *prometheus.CounterVec
	networkNodes   *prometheus.GaugeVec
	networkEdges   prometheus.Gauge
}

// New registers the minet collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minet",
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Record fetches by source, method and outcome",
		}, []string{"source", "method", "outcome"}),
		fetchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minet",
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Retried requests by source",
		}, []string{"source"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "minet",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of record fetches including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"source", "method"}),
		expansionSteps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "minet",
			Subsystem: "expansion",
			Name:      "steps_total",
			Help:      "Expansion steps executed",
		}),
		excluded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minet",
			Subsystem: "expansion",
			Name:      "excluded_total",
			Help:      "Records excluded for exceeding the carbon limit",
		}, []string{"record"}),
		networkNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "minet",
			Subsystem: "network",
			Name:      "nodes",
			Help:      "Nodes in the built network by kind",
		}, []string{"kind"}),
		networkEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "minet",
			Subsystem: "network",
			Name:      "edges",
			Help:      "Edges in the built network",
		}),
	}
}

// ObserveFetch records one fetch of method against source.
func (m *Metrics) ObserveFetch(source, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchRequests.WithLabelValues(source, method, outcome).Inc()
	m.fetchDuration.WithLabelValues(source, method).Observe(d.Seconds())
}

// Retry counts one retried request against source.
func (m *Metrics) Retry(source string) {
	if m == nil {
		return
	}
	m.fetchRetries.WithLabelValues(source).Inc()
}

// ExpansionStep counts one expansion step.
func (m *Metrics) ExpansionStep() {
	if m == nil {
		return
	}
	m.expansionSteps.Inc()
}

// Excluded counts a compound or reaction excluded by the carbon limit.
func (m *Metrics) Excluded(record string) {
	if m == nil {
		return
	}
	m.excluded.WithLabelValues(record).Inc()
}

// SetNetwork sets the network gauges from n.
func (m *Metrics) SetNetwork(n *graph.Network) {
	if m == nil || n == nil {
		return
	}
	m.networkNodes.WithLabelValues(graph.KindCompound.String()).Set(float64(n.CountNodesByKind(graph.KindCompound)))
	for _, kind := range graph.ReactionKinds {
		m.networkNodes.WithLabelValues(kind.String()).Set(float64(n.CountNodesByKind(kind)))
	}
	m.networkEdges.Set(float64(n.EdgeCount()))
}

// WriteTextfile writes everything gathered by g to path in the Prometheus
// text format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
