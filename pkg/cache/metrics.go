package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks requests served from a fresh entry.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "requestcache_hits_total",
			Help: "Total number of requests served from a fresh cache entry",
		},
	)

	// CacheMisses tracks requests that needed a fetch, by reason.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestcache_misses_total",
			Help: "Total number of cache misses by reason",
		},
		[]string{"reason"}, // "absent", "expired"
	)

	// CoalescedRequests tracks callers that shared another caller's in-flight fetch.
	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "requestcache_coalesced_total",
			Help: "Total number of requests that waited on an in-flight fetch for the same key",
		},
	)

	// FetchFailures tracks refreshes that failed after the retry budget.
	FetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "requestcache_fetch_failures_total",
			Help: "Total number of cache refreshes that failed",
		},
	)

	// CacheEntries tracks the number of stored entries.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "requestcache_entries",
			Help: "Current number of cache entries by store",
		},
		[]string{"store"}, // "memory", "redis"
	)

	// CacheErrors tracks store operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestcache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "len"
	)
)
