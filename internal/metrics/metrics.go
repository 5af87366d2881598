// Package metrics provides Prometheus metrics for datafs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote store metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafs_remote_requests_total",
			Help: "Total number of remote store calls",
		},
		[]string{"connector", "op", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datafs_remote_request_duration_seconds",
			Help:    "Remote store call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector", "op"},
	)

	remoteBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datafs_remote_bytes_read_total",
			Help: "Total bytes fetched by whole object reads",
		},
	)

	remoteBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datafs_remote_bytes_written_total",
			Help: "Total bytes pushed by whole object writes",
		},
	)

	// Filesystem metrics
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datafs_cache_entries",
			Help: "Number of files held in the data cache",
		},
	)

	inodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datafs_inodes",
			Help: "Number of known inodes",
		},
	)

	flushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datafs_flushes_total",
			Help: "Total number of dirty buffer pushes",
		},
		[]string{"status"},
	)

	lookupShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datafs_lookup_shortcircuits_total",
			Help: "Lookups answered without a remote call (whitelist or listed directory)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteCall records one remote store call.
func RecordRemoteCall(connector, op string, duration time.Duration, status string) {
	remoteRequestsTotal.WithLabelValues(connector, op, status).Inc()
	remoteRequestDuration.WithLabelValues(connector, op).Observe(duration.Seconds())
}

func RecordBytesRead(n int) {
	remoteBytesRead.Add(float64(n))
}

func RecordBytesWritten(n int) {
	remoteBytesWritten.Add(float64(n))
}

func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func SetInodes(n int) {
	inodes.Set(float64(n))
}

// RecordFlush records a dirty buffer push.
func RecordFlush(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	flushesTotal.WithLabelValues(status).Inc()
}

func RecordLookupShortCircuit() {
	lookupShortCircuits.Inc()
}
