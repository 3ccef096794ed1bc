package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileItemsTotal,
		reconcileBatchDuration,
		reconcileRedispatchTotal,
	)
}

var (
	reconcileItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_items_total",
			Help: "Poller item outcomes (updated/unchanged/not_found/error).",
		},
		[]string{"outcome"},
	)

	reconcileBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_batch_duration_seconds",
			Help:    "Wall time of a reconciliation pass.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	reconcileRedispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_redispatch_total",
			Help: "Re-runs of the status-change dispatcher for unreconciled transactions.",
		},
		[]string{"result"}, // 'ok', 'error'
	)
)

func IncReconcileItem(outcome string) {
	reconcileItemsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveReconcileBatch(seconds float64) {
	reconcileBatchDuration.Observe(seconds)
}

func IncRedispatch(result string) {
	reconcileRedispatchTotal.WithLabelValues(norm(result)).Inc()
}
