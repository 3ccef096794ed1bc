package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(engineInfo, engineStartTime)
}

var (
	engineInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "momo_engine_info",
			Help: "Always 1; labels carry the running build and Go runtime.",
		},
		[]string{"version", "commit", "go_version"},
	)

	engineStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "momo_engine_start_time_seconds",
		Help: "Unix time the engine process published its build info.",
	})
)

// SetBuildInfo publishes the ldflags version and commit. Empty values are
// reported as "unknown".
func SetBuildInfo(version, commit string) {
	engineInfo.WithLabelValues(orUnknown(version), orUnknown(commit), runtime.Version()).Set(1)
	engineStartTime.Set(float64(time.Now().Unix()))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
