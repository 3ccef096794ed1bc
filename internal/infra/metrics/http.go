package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(httpPanicsTotal)
}

var httpPanicsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_handler_panics_total",
		Help: "Panics recovered by the HTTP middleware, by method.",
	},
	[]string{"method"},
)

func IncHTTPPanic(method string) {
	httpPanicsTotal.WithLabelValues(norm(method)).Inc()
}
