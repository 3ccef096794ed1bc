package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsInitiatedTotal,
		transitionsTotal,
		stateAnomaliesTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Initiate calls by result (ok/validation/rejected/unavailable/duplicate/error).",
		},
		[]string{"result"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Transaction state-machine decisions by source, target status and decision.",
		},
		[]string{"source", "to", "decision"},
	)

	stateAnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_state_anomalies_total",
			Help: "Rejected or unrecognised transitions, labeled by kind.",
		},
		[]string{"kind"}, // 'conflict', 'stale', 'ignored'
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Net revenue of confirmed payments, in plan price units.",
		},
	)
)

func IncPaymentInitiated(result string) {
	paymentsInitiatedTotal.WithLabelValues(norm(result)).Inc()
}

func IncTransition(source, to, decision string) {
	transitionsTotal.WithLabelValues(norm(source), norm(to), norm(decision)).Inc()
}

func IncStateAnomaly(kind string) {
	stateAnomaliesTotal.WithLabelValues(norm(kind)).Inc()
}

func AddPaymentRevenue(amount int64) {
	if amount > 0 {
		paymentsRevenueTotal.Add(float64(amount))
	}
}
