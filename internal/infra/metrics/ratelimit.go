package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitDecisionsTotal, pollerLockTotal) }

var (
	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by scope and result.",
		},
		[]string{"scope", "result"}, // result: 'allowed', 'limited', 'error'
	)

	pollerLockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_lock_total",
			Help: "Attempts to take the reconcile pass lock by result.",
		},
		[]string{"result"}, // 'acquired', 'busy', 'error'
	)
)

func IncRateLimit(scope, result string) {
	rateLimitDecisionsTotal.WithLabelValues(norm(scope), norm(result)).Inc()
}

func IncReconcileLock(result string) {
	pollerLockTotal.WithLabelValues(norm(result)).Inc()
}
