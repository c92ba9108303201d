package obs

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every client metric. The CLI flushes it to a textfile on exit.
var Registry = prometheus.NewRegistry()

var (
	initOnce sync.Once

	clientInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "srq20_client_in_flight_requests",
		Help: "Outbound API requests currently in flight.",
	})

	clientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "srq20_client_requests_total",
			Help: "Total number of outbound API requests.",
		},
		[]string{"method", "endpoint", "status"},
	)

	clientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "srq20_client_request_duration_seconds",
			Help:    "Outbound API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// Init registers the client metrics once.
func Init() {
	initOnce.Do(func() {
		Registry.MustRegister(clientInFlight, clientRequestsTotal, clientRequestDuration)
	})
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func TrackInFlight() func() {
	Init()
	clientInFlight.Inc()
	var once sync.Once
	return func() { once.Do(clientInFlight.Dec) }
}

// ObserveRequest records one finished request. Status 0 means no response was received.
func ObserveRequest(method, path string, status int, elapsed time.Duration) {
	Init()
	endpoint := CanonicalPath(path)
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	clientRequestDuration.WithLabelValues(method, endpoint, code).Observe(elapsed.Seconds())
	clientRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	return prometheus.WriteToTextfile(path, Registry)
}

// CanonicalPath strips the query string and collapses numeric ids so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	trailing := strings.HasSuffix(raw, "/")
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i, p := range parts {
		if _, err := strconv.Atoi(p); err == nil {
			parts[i] = ":id"
		}
	}
	out := "/" + strings.Join(parts, "/")
	if trailing {
		out += "/"
	}
	return out
}
