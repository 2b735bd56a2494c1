// Package metrics provides Prometheus metrics for the media proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts outbound fetches by outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coverproxy",
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream fetches",
		},
		[]string{"outcome"},
	)

	// UpstreamDuration measures time to upstream response headers.
	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coverproxy",
			Name:      "upstream_duration_seconds",
			Help:      "Time until upstream response headers in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CacheLookups counts cache reads by namespace and result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coverproxy",
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"namespace", "result"},
	)

	// CacheWriteFailures counts discarded cache writes.
	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coverproxy",
			Name:      "cache_write_failures_total",
			Help:      "Total number of failed cache writes",
		},
		[]string{"namespace"},
	)

	// RelaySessions counts finished relay sessions by terminal state.
	RelaySessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coverproxy",
			Name:      "relay_sessions_total",
			Help:      "Total number of relay sessions by terminal state",
		},
		[]string{"state"},
	)

	// RelayBytes counts bytes forwarded to relay clients.
	RelayBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coverproxy",
			Name:      "relay_bytes_total",
			Help:      "Total number of bytes relayed to clients",
		},
	)
)

// RecordUpstream records one upstream fetch.
func RecordUpstream(outcome string, seconds float64) {
	UpstreamRequests.WithLabelValues(outcome).Inc()
	UpstreamDuration.Observe(seconds)
}

// RecordCacheLookup records a cache hit, miss or error.
func RecordCacheLookup(namespace, result string) {
	CacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordCacheWriteFailure records a discarded cache write.
func RecordCacheWriteFailure(namespace string) {
	CacheWriteFailures.WithLabelValues(namespace).Inc()
}

// RecordRelay records a finished relay session.
func RecordRelay(state string, bytes int64) {
	RelaySessions.WithLabelValues(state).Inc()
	RelayBytes.Add(float64(bytes))
}
