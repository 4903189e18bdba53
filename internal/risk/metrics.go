package risk

import "github.com/prometheus/client_golang/prometheus"

var (
	evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Subsystem: "risk",
		Name:      "evaluations_total",
		Help:      "Risk evaluations by outcome.",
	}, []string{"outcome"}) // "signed", "scoring_unavailable", "invalid_score", "persist_failed", "invalid_input"

	scorerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamvault",
		Subsystem: "risk",
		Name:      "scorer_duration_seconds",
		Help:      "Latency of external scorer calls made during evaluation.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	bandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamvault",
		Subsystem: "risk",
		Name:      "signed_bands_total",
		Help:      "Signed payloads by risk band.",
	}, []string{"band"})
)

func init() {
	prometheus.MustRegister(evaluationsTotal, scorerDuration, bandsTotal)
}
