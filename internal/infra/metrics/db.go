package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbUpdateRetries) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "momo_db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // total|idle|acquired
	)
	dbUpdateRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "momo_db_update_retries_total",
			Help: "Optimistic updates re-run after a version mismatch, by table and result.",
		},
		[]string{"table", "result"}, // retried|exhausted
	)
)

func SetDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

func IncDBUpdateRetry(table, result string) {
	dbUpdateRetries.WithLabelValues(norm(table), norm(result)).Inc()
}
