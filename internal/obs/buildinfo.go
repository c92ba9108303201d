package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "srq20_build_info",
			Help: "SRQ-20 client build information, constant 1.",
		},
		[]string{"version", "commit", "goversion"},
	)
)

// InitBuildInfo publishes the binary's version, commit and Go toolchain.
// Calling it again with other values replaces the previous series.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		Registry.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
