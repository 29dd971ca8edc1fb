package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/request-cache/pkg/cache"
	"github.com/Sternrassler/request-cache/pkg/clock"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestcache_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestcache_retry_exhausted_total",
		Help: "Total number of fetches that exhausted all attempts by last error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	MaxAttempts int

	// Delay is the fixed wait between attempts. It does not grow.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       10 * time.Second,
	}
}

// Retrier wraps a Fetcher with a fixed attempt budget and a fixed delay
// between attempts. Every failure is retried the same way.
type Retrier struct {
	fetcher cache.Fetcher
	config  RetryConfig
	clock   clock.Clock
	logger  zerolog.Logger
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithRetryClock sets the clock used for delays between attempts.
func WithRetryClock(clk clock.Clock) RetryOption {
	return func(r *Retrier) {
		r.clock = clk
	}
}

// WithRetryLogger sets the logger used for attempt warnings.
func WithRetryLogger(logger zerolog.Logger) RetryOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// NewRetrier creates a Retrier around fetcher. A non-positive MaxAttempts
// falls back to the default; a negative Delay is treated as zero.
func NewRetrier(fetcher cache.Fetcher, config RetryConfig, opts ...RetryOption) *Retrier {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.Delay < 0 {
		config.Delay = 0
	}

	r := &Retrier{
		fetcher: fetcher,
		config:  config,
		clock:   clock.Real(),
		logger:  log.With().Str("component", "retrier").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective retry configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Fetch calls the wrapped fetcher until it succeeds or MaxAttempts is
// reached. Every failed attempt, the final one included, is followed by the
// configured delay. On exhaustion it returns a *RetryExhaustedError carrying
// the last error.
func (r *Retrier) Fetch(ctx context.Context, key string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		payload, err := r.fetcher.Fetch(ctx, key)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("key", key).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return payload, nil
		}

		lastErr = err
		errorClass := classify(err)

		r.logger.Warn().
			Stack().
			Err(err).
			Str("key", key).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Int("max_attempts", r.config.MaxAttempts).
			Msg("Fetch attempt failed")

		if attempt < r.config.MaxAttempts {
			retriesTotal.WithLabelValues(string(errorClass)).Inc()
		}

		if err := r.clock.Sleep(ctx, r.config.Delay); err != nil {
			// The budget is already spent; report exhaustion, not cancellation.
			if attempt == r.config.MaxAttempts {
				break
			}
			r.logger.Warn().
				Str("key", key).
				Int("attempt", attempt).
				Msg("Context cancelled during retry delay")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(classify(lastErr))).Inc()
	r.logger.Error().
		Err(lastErr).
		Str("key", key).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &RetryExhaustedError{
		Key:      key,
		Attempts: r.config.MaxAttempts,
		Last:     lastErr,
	}
}
