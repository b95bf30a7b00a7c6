package reorg

import (
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the instrumentation surface the Processor reports through.
// A nil-safe no-op implementation (NopMetrics) is the default so library
// consumers don't have to wire in Prometheus just to use the engine.
type Metrics interface {
	// ReorgObserved records the depth (number of removed headers) of a
	// completed or cancelled reorganization. It is called only for passes
	// that needed an unwind; a pure linear extension is not recorded.
	ReorgObserved(depth int)
	// EventEmitted records one Add or Remove event.
	EventEmitted(kind Kind)
	// CursorAdvanced records the cursor's new sequence number.
	CursorAdvanced(sequence uint64)
}

// NopMetrics discards everything. NewProcessor uses it when it is given a
// nil Metrics.
type NopMetrics struct{}

func (NopMetrics) ReorgObserved(int)     {}
func (NopMetrics) EventEmitted(Kind)     {}
func (NopMetrics) CursorAdvanced(uint64) {}

var _ Metrics = NopMetrics{}

// PromMetrics is a Prometheus-backed Metrics implementation, following the
// familiar module/metrics convention of one struct per subsystem exposing
// already-registered collectors.
type PromMetrics struct {
	reorgDepth    prometheus.Histogram
	eventsEmitted *prometheus.CounterVec
	cursorHeight  prometheus.Gauge

	mu           sync.Mutex
	recentDepths []float64
}

// NewPromMetrics builds and registers a PromMetrics with reg.
func NewPromMetrics(reg prometheus.Registerer, namespace string) *PromMetrics {
	m := &PromMetrics{
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reorg",
			Name:      "depth",
			Help:      "Depth (number of removed headers) of observed reorganizations.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
		}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reorg",
			Name:      "events_emitted_total",
			Help:      "Total number of add/remove events emitted by the processor.",
		}, []string{"kind"}),
		cursorHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reorg",
			Name:      "cursor_sequence",
			Help:      "Current sequence number of the processor's cursor.",
		}),
	}
	reg.MustRegister(m.reorgDepth, m.eventsEmitted, m.cursorHeight)
	return m
}

// ReorgObserved implements Metrics.
func (m *PromMetrics) ReorgObserved(depth int) {
	m.reorgDepth.Observe(float64(depth))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentDepths = append(m.recentDepths, float64(depth))
	if len(m.recentDepths) > 256 {
		m.recentDepths = m.recentDepths[len(m.recentDepths)-256:]
	}
}

// EventEmitted implements Metrics.
func (m *PromMetrics) EventEmitted(kind Kind) {
	m.eventsEmitted.WithLabelValues(kind.String()).Inc()
}

// CursorAdvanced implements Metrics.
func (m *PromMetrics) CursorAdvanced(sequence uint64) {
	m.cursorHeight.Set(float64(sequence))
}

// ReorgDepthSummary reports a mean/median/p95 summary over the most
// recently observed reorg depths, for periodic structured logging. This is
// deliberately not a Prometheus summary/histogram quantile — those are
// approximations across the whole process lifetime, while operators
// debugging a rough patch usually want "how bad has it been lately".
func (m *PromMetrics) ReorgDepthSummary() (mean, median, p95 float64, err error) {
	m.mu.Lock()
	samples := append([]float64(nil), m.recentDepths...)
	m.mu.Unlock()

	if len(samples) == 0 {
		return 0, 0, 0, nil
	}
	mean, err = stats.Mean(samples)
	if err != nil {
		return 0, 0, 0, err
	}
	median, err = stats.Median(samples)
	if err != nil {
		return 0, 0, 0, err
	}
	p95, err = stats.Percentile(samples, 95)
	if err != nil {
		return 0, 0, 0, err
	}
	return mean, median, p95, nil
}

var _ Metrics = (*PromMetrics)(nil)
