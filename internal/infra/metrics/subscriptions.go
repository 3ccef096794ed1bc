package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionChangesTotal,
		dispatchResultsTotal,
		notificationsTotal,
	)
}

var (
	subscriptionChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_changes_total",
			Help: "Subscription lifecycle changes by kind.",
		},
		[]string{"kind"}, // 'created', 'extended', 'duplicate', 'downgraded', 'downgrade_suppressed'
	)

	dispatchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_dispatch_total",
			Help: "Status-change dispatcher results by target status and outcome.",
		},
		[]string{"status", "outcome"}, // outcome: 'ok', 'partial', 'failed'
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notifications by kind and delivery status.",
		},
		[]string{"kind", "status"}, // kind: 'status_change', 'alert'; status: 'sent', 'error'
	)
)

func IncSubscriptionChange(kind string) {
	subscriptionChangesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncDispatch(status, outcome string) {
	dispatchResultsTotal.WithLabelValues(norm(status), norm(outcome)).Inc()
}

func IncNotification(kind, status string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
