// Package metrics provides the centralized Prometheus metrics registry for
// the storefront client. All metrics are defined in their respective packages
// (client, cache, auth, pagination) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the storefront client.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - storefront_requests_total{operation, status} (Counter): Total dispatched requests by operation and HTTP status
//   - storefront_request_duration_seconds{operation} (Histogram): Request duration by operation, retries included
//   - storefront_request_errors_total{kind} (Counter): Classified request failures by error kind
//
// Retry Metrics (pkg/client):
//   - storefront_retries_total{kind} (Counter): Retry attempts by error kind
//   - storefront_retry_exhausted_total{kind} (Counter): Requests that exhausted max attempts
//
// Session Metrics (pkg/auth):
//   - storefront_token_refreshes_total{outcome} (Counter): Token refresh network calls by outcome (success, failure)
//   - storefront_refresh_waiters_total (Counter): Callers that waited on an in-flight refresh instead of starting one
//   - storefront_sessions_cleared_total{reason} (Counter): Sessions cleared by reason (logout, refresh_failed)
//
// Page Cache Metrics (pkg/cache):
//   - storefront_page_cache_hits_total{layer} (Counter): Page cache hits by layer
//   - storefront_page_cache_misses_total (Counter): Page cache misses
//   - storefront_page_cache_bytes_written_total{layer} (Counter): Bytes written to the page cache
//   - storefront_page_cache_errors_total{operation} (Counter): Page cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - storefront_pages_fetched_total{direction, source} (Counter): Pages loaded by direction and source (cache, backend)
//   - storefront_prefetches_total (Counter): Speculative next-page fetches
//
// Example Prometheus Queries:
//
//   # Page Cache Hit Rate
//   sum(rate(storefront_page_cache_hits_total[5m])) /
//   (sum(rate(storefront_page_cache_hits_total[5m])) + sum(rate(storefront_page_cache_misses_total[5m])))
//
//   # Request Error Rate by Kind
//   rate(storefront_request_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(storefront_request_duration_seconds_bucket[5m]))
//
//   # Refresh Deduplication (waiters per network refresh)
//   rate(storefront_refresh_waiters_total[5m]) /
//   sum(rate(storefront_token_refreshes_total[5m]))
//
//   # Share of Pages Served Without a Backend Round Trip
//   sum(rate(storefront_pages_fetched_total{source="cache"}[5m])) /
//   sum(rate(storefront_pages_fetched_total[5m]))
