package decoder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode outcomes used as the "result" label.
const (
	resultSuccess = "success"
	resultBackoff = "backoff"
	resultFailure = "failure"
)

// Metrics exports decoder counters. A nil *Metrics records nothing.
type Metrics struct {
	decodes    *prometheus.CounterVec
	generated  prometheus.Counter
	recombined prometheus.Counter
	pruned     prometheus.Counter
	forbidden  prometheus.Counter
	latency    prometheus.Histogram
}

// NewMetrics registers the decoder metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "decodes_total",
			Help:      "Decode calls by result.",
		}, []string{"result"}),
		generated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "derivations_generated_total",
			Help:      "Derivations built during search.",
		}),
		recombined: f.NewCounter(prometheus.CounterOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "derivations_recombined_total",
			Help:      "Derivations merged into an equivalent representative.",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "derivations_pruned_total",
			Help:      "Derivations evicted by beam capacity.",
		}),
		forbidden: f.NewCounter(prometheus.CounterOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "consequents_forbidden_total",
			Help:      "Grid cells rejected by the output space.",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phrasal",
			Subsystem: "decoder",
			Name:      "decode_seconds",
			Help:      "Search time per decode call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// SearchStats summarizes one decode call.
type SearchStats struct {
	Generated  int
	Recombined int
	Pruned     int
	Forbidden  int
	Discarded  int
	Duration   time.Duration
}

func (m *Metrics) observe(result string, st SearchStats) {
	if m == nil {
		return
	}
	m.decodes.WithLabelValues(result).Inc()
	m.generated.Add(float64(st.Generated))
	m.recombined.Add(float64(st.Recombined))
	m.pruned.Add(float64(st.Pruned))
	m.forbidden.Add(float64(st.Forbidden))
	m.latency.Observe(st.Duration.Seconds())
}
