// Package warmup pre-populates a request cache for a known set of keys.
//
// The warmer requests every key through the cache with bounded concurrency.
// Keys that are already fresh cost nothing; the others are fetched (with the
// cache's retry policy). A failing key does not stop the others.
//
// Example usage:
//
//	w := warmup.NewWarmer(requestCache, warmup.DefaultConfig())
//	result, err := w.WarmAll(ctx, []string{url1, url2})
//	for key, err := range result.Failed {
//		log.Warn().Err(err).Str("key", key).Msg("warmup failed")
//	}
package warmup
