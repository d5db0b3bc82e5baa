package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors a combining engine updates.
// Construct once per process with NewMetrics and share across engine
// instances; each collector is labeled by engine_id and engine_kind so
// a PBComb and a PWFComb instance can be told apart on the same
// dashboard, following the same label-per-instance pattern the teacher
// uses for its own request counters.
type Metrics struct {
	Applies       *prometheus.CounterVec
	CombineRounds *prometheus.HistogramVec
	CombinerWins  *prometheus.CounterVec
	Publications  *prometheus.CounterVec
	CASFailures   *prometheus.CounterVec
}

// NewMetrics registers the engine's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test engines.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcomb",
			Name:      "applies_total",
			Help:      "Operations applied by a combiner, labeled by engine instance and kind.",
		}, []string{"engine_id", "engine_kind"}),
		CombineRounds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pcomb",
			Name:      "combine_rounds",
			Help:      "Number of passes a combiner made before exhausting pending requests.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}, []string{"engine_id", "engine_kind"}),
		CombinerWins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcomb",
			Name:      "combiner_role_total",
			Help:      "Times a thread acquired the combiner role.",
		}, []string{"engine_id", "engine_kind"}),
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcomb",
			Name:      "publications_total",
			Help:      "Successful versioned-pointer publications.",
		}, []string{"engine_id", "engine_kind"}),
		CASFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcomb",
			Name:      "cas_failures_total",
			Help:      "Combine attempts that did not publish: a stale read of the versioned state pointer or a failed compare-and-swap on it.",
		}, []string{"engine_id", "engine_kind"}),
	}
	reg.MustRegister(m.Applies, m.CombineRounds, m.CombinerWins, m.Publications, m.CASFailures)
	return m
}
