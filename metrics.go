package firez

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported by Metrics and the Recorder's logger.
const (
	DropExtraction = "extraction"
	DropFinalized  = "finalized"
	DropReference  = "reference"
)

// Metrics exposes capture counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	appended     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	burnDuration prometheus.Histogram
	spansOpen    prometheus.Gauge
}

// NewMetrics creates the capture metrics and registers them on reg.
// A nil reg uses a fresh registry, which is mostly useful in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	m := &Metrics{
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_appended_total",
			Help:      "Nodes appended to the capture arena, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Spans and events that could not be recorded, by reason.",
		}, []string{"reason"}),
		burnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "burn_duration_seconds",
			Help:      "Time spent turning an arena into a frozen tree.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		spansOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spans_open",
			Help:      "Spans started but not yet ended.",
		}),
	}

	collectors := []prometheus.Collector{m.appended, m.dropped, m.burnDuration, m.spansOpen}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("registering capture metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) nodeAppended(kind Kind) {
	if m == nil {
		return
	}
	m.appended.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) nodeDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) burned(d time.Duration) {
	if m == nil {
		return
	}
	m.burnDuration.Observe(d.Seconds())
}

func (m *Metrics) spanStarted() {
	if m == nil {
		return
	}
	m.spansOpen.Inc()
}

func (m *Metrics) spanEnded() {
	if m == nil {
		return
	}
	m.spansOpen.Dec()
}
