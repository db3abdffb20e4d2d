package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits by layer (redis, memory)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_page_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"layer"}, // "redis", "memory"
	)

	// CacheMisses tracks page cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_page_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheBytesWritten tracks payload bytes written by layer
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_page_cache_bytes_written_total",
			Help: "Total page payload bytes written to the cache",
		},
		[]string{"layer"}, // "redis", "memory"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_page_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
