package accrual

import "github.com/prometheus/client_golang/prometheus"

var calculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streamvault",
	Subsystem: "accrual",
	Name:      "calculations_total",
	Help:      "Accrual calculations served over HTTP by outcome.",
}, []string{"outcome"}) // "claimable", "zero", "invalid"

func init() {
	prometheus.MustRegister(calculationsTotal)
}
