// Package cache provides a response cache for outbound GET requests.
//
// A Cache keeps the most recent successful payload per request key and decides
// whether it may be served using one of two expiration policies:
//
//   - RollingTTL: an entry is stale once TTL has elapsed since it was stored.
//   - CalendarReset: an entry is stale once the UTC calendar day changes or a
//     configured UTC reset hour has been crossed (e.g. a forecast bulletin
//     published every morning at 06:00).
//
// Failed fetches never create or replace entries.
//
// # Basic Usage
//
//	policy, err := cache.NewCalendarReset(6, 18)
//	if err != nil {
//		return err
//	}
//
//	fetcher := client.NewRetrier(client.NewHTTPFetcher(client.DefaultConfig()),
//		client.DefaultRetryConfig())
//
//	c, err := cache.New(fetcher, policy)
//	if err != nil {
//		return err
//	}
//
//	body, err := c.Request(ctx, "https://example.com/forecast?id=15030")
//
// # Stores
//
// MemoryStore (the default) lives for the lifetime of the process and never
// evicts. RedisStore shares entries between processes:
//
//	store := cache.NewRedisStore(redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	}), "meteo")
//	c, err := cache.New(fetcher, policy, cache.WithStore(store))
//
// # Metrics
//
//   - requestcache_hits_total - Requests served from a fresh entry
//   - requestcache_misses_total{reason} - Misses (absent, expired)
//   - requestcache_coalesced_total - Requests that shared an in-flight fetch
//   - requestcache_fetch_failures_total - Refreshes that failed
//   - requestcache_entries{store} - Stored entries
//   - requestcache_store_errors_total{operation} - Store errors
package cache
