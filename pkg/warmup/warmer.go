package warmup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of keys requested in parallel.
	MaxConcurrency int

	// Timeout bounds each key's request, retries included. Zero means no
	// bound beyond the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
	}
}

// Requester is satisfied by *cache.Cache.
type Requester interface {
	Request(ctx context.Context, key string) ([]byte, error)
}

// Result summarises a warmup run.
type Result struct {
	// Warmed is the number of keys that now have a payload.
	Warmed int

	// Failed maps each failing key to its error.
	Failed map[string]error

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Warmer requests many keys through a cache concurrently.
type Warmer struct {
	requester Requester
	config    Config
	logger    zerolog.Logger
}

// NewWarmer creates a new Warmer.
func NewWarmer(requester Requester, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	return &Warmer{
		requester: requester,
		config:    config,
		logger:    log.With().Str("component", "warmup").Logger(),
	}
}

// WarmAll requests every distinct key once. Per-key failures are collected in
// Result.Failed; the returned error is non-nil only if ctx ended the run.
func (w *Warmer) WarmAll(ctx context.Context, keys []string) (Result, error) {
	start := time.Now()
	keys = dedupe(keys)

	result := Result{Failed: make(map[string]error)}
	if len(keys) == 0 {
		return result, nil
	}

	w.logger.Info().
		Int("keys", len(keys)).
		Int("concurrency", w.config.MaxConcurrency).
		Msg("Starting cache warmup")

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}

			reqCtx := gCtx
			if w.config.Timeout > 0 {
				var cancel context.CancelFunc
				reqCtx, cancel = context.WithTimeout(gCtx, w.config.Timeout)
				defer cancel()
			}

			_, err := w.requester.Request(reqCtx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[key] = err
				w.logger.Warn().Err(err).Str("key", key).Msg("Warmup request failed")
				return nil
			}
			result.Warmed++
			return nil
		})
	}

	err := g.Wait()
	result.Duration = time.Since(start)

	w.logger.Info().
		Int("warmed", result.Warmed).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("Cache warmup complete")

	if err == nil {
		err = ctx.Err()
	}
	return result, err
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
