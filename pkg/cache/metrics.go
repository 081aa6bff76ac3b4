package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of offline cache hits",
		},
		[]string{"backend"}, // "memory", "redis", "leveldb"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of offline cache misses",
		},
		[]string{"backend"},
	)

	// CacheStoredBytes tracks bytes written per generation
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_stored_bytes_total",
			Help: "Total response bytes written to the offline cache",
		},
		[]string{"generation"},
	)

	// GenerationsDeleted tracks removed cache generations
	GenerationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_generations_deleted_total",
			Help: "Total number of cache generations deleted",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "put", "get", "delete", "list"
	)
)
