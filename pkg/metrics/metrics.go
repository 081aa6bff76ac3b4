// Package metrics provides the Prometheus registry and scrape handler for the
// offline proxy. All metrics are defined in their respective packages
// (cache, client, strategy, registry) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the offline proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the counterpart of Registry served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Path is where the binary mounts Handler.
const Path = "/metrics"

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - offline_cache_hits_total{backend} (Counter): Cache hits by storage backend
//   - offline_cache_misses_total{backend} (Counter): Cache misses by storage backend
//   - offline_cache_stored_bytes_total{generation} (Counter): Body bytes written per generation
//   - offline_cache_generations_deleted_total (Counter): Generations deleted by activation or clear
//   - offline_cache_errors_total{operation} (Counter): Storage errors (open, put, get, delete, list)
//
// Origin Metrics (pkg/client):
//   - offline_origin_requests_total{status} (Counter): Origin requests by HTTP status
//   - offline_origin_request_duration_seconds{method} (Histogram): Origin latency
//   - offline_origin_errors_total{class} (Counter): Errors by class (client, server, network)
//   - offline_origin_retries_total{error_class} (Counter): Retry attempts
//   - offline_origin_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - offline_origin_retry_exhausted_total{error_class} (Counter): Fetches that exhausted retries
//
// Strategy Metrics (pkg/strategy):
//   - offline_strategy_requests_total{strategy, source} (Counter): Requests by strategy and
//     response source (network, cache, error)
//   - offline_strategy_duration_seconds{strategy} (Histogram): Handling duration
//   - offline_revalidations_total{result} (Counter): Background refresh outcomes
//   - offline_background_tasks_dropped_total (Counter): Refreshes dropped at the task limit
//
// Registration Metrics (pkg/registry):
//   - offline_registration_phase{generation, phase} (Gauge): 1 for the current phase
//   - offline_registration_updates_total{phase} (Counter): Registration state updates
//
// Example Prometheus Queries:
//
//   # Offline Hit Rate
//   sum(rate(offline_strategy_requests_total{source="cache"}[5m])) /
//   sum(rate(offline_strategy_requests_total[5m]))
//
//   # Requests Answered By Nothing
//   rate(offline_strategy_requests_total{source="error"}[5m])
//
//   # P95 Origin Latency
//   histogram_quantile(0.95, rate(offline_origin_request_duration_seconds_bucket[5m]))
//
//   # Failed Installs
//   offline_registration_phase{phase="install_failed"} == 1
