// Package metrics exposes the Prometheus metrics of the request cache.
// Collectors are defined next to the code that updates them (cache, client)
// and registered with the default registry through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics reference
//
// Cache (pkg/cache):
//   - requestcache_hits_total (Counter): requests served from a fresh entry
//   - requestcache_misses_total{reason} (Counter): absent or expired entries
//   - requestcache_coalesced_total (Counter): requests that shared an in-flight fetch
//   - requestcache_fetch_failures_total (Counter): refreshes that failed
//   - requestcache_entries{store} (Gauge): stored entries
//   - requestcache_store_errors_total{operation} (Counter): store errors
//
// Upstream (pkg/client):
//   - requestcache_fetch_requests_total{host, status} (Counter)
//   - requestcache_fetch_duration_seconds{host} (Histogram)
//   - requestcache_retries_total{error_class} (Counter)
//   - requestcache_retry_exhausted_total{error_class} (Counter)
//
// Example queries:
//
//   # Hit ratio
//   rate(requestcache_hits_total[5m]) /
//   (rate(requestcache_hits_total[5m]) + sum(rate(requestcache_misses_total[5m])))
//
//   # Upstream failures reaching callers
//   rate(requestcache_retry_exhausted_total[5m])
