package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/request-cache/internal/config"
	"github.com/Sternrassler/request-cache/pkg/cache"
	"github.com/Sternrassler/request-cache/pkg/client"
	"github.com/Sternrassler/request-cache/pkg/forecast"
	"github.com/Sternrassler/request-cache/pkg/logging"
	"github.com/Sternrassler/request-cache/pkg/warmup"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd(ver string) *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "forecast-proxy",
		Short:         "Caching proxy for weather forecast requests",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				loaded.Log.Level = "debug"
			}

			logCfg := loaded.LoggingConfig()
			logCfg.Output = cmd.ErrOrStderr()
			logging.Setup(logCfg)

			cfg = loaded
			return nil
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.AddCommand(
		newServeCmd(func() *config.Config { return cfg }),
		newFetchCmd(func() *config.Config { return cfg }),
	)

	return cmd
}

func newServeCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), getConfig())
		},
	}
}

func newFetchCmd(getConfig func() *config.Config) *cobra.Command {
	var place bool

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Request one URL through the cache and print the body",
		Example: `  forecast-proxy fetch 'https://servizos.meteogalicia.gal/rss/predicion/jsonPredConcellos.action?idConc=15030'
  forecast-proxy fetch --place 15030`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()

			key := args[0]
			if place {
				u, err := forecast.PredictionURL(cfg.Fetch.BaseURL, args[0])
				if err != nil {
					return err
				}
				key = u
			}

			c, closeStore, err := buildCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			body, err := c.Request(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("request %s: %w", key, err)
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmd.Flags().BoolVar(&place, "place", false, "treat the argument as a place code")
	return cmd
}

// buildCache wires fetcher, retry driver and store from cfg. The returned
// func releases the store connection.
func buildCache(ctx context.Context, cfg *config.Config, opts ...cache.Option) (*cache.Cache, func(), error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, nil, err
	}

	fetcher := client.NewRetrier(client.NewHTTPFetcher(cfg.HTTPFetcherConfig()), cfg.RetryConfig())

	closeStore := func() {}
	if cfg.UsesRedis() {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisURL,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisURL, err)
		}
		log.Info().Str("addr", cfg.Cache.RedisURL).Msg("Connected to Redis")

		opts = append([]cache.Option{cache.WithStore(cache.NewRedisStore(redisClient, cfg.Cache.KeyPrefix))}, opts...)
		closeStore = func() { _ = redisClient.Close() }
	}

	opts = append([]cache.Option{cache.WithFlightTimeout(cfg.FlightTimeout())}, opts...)
	c, err := cache.New(fetcher, policy, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	log.Info().
		Str("policy", policy.String()).
		Bool("redis", cfg.UsesRedis()).
		Int("retry_attempts", cfg.Fetch.RetryAttempts).
		Dur("retry_delay", cfg.Fetch.RetryDelay).
		Msg("Request cache ready")

	return c, closeStore, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, closeStore, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if len(cfg.Warmup.Places) > 0 {
		go warm(ctx, c, cfg)
	}

	logger := logging.NewLogger("http-server")
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newServer(c, cfg.Fetch.BaseURL, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting forecast proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// warm requests the configured places once so the first clients hit the
// cache. Failures are logged only.
func warm(ctx context.Context, c *cache.Cache, cfg *config.Config) {
	logger := logging.NewLogger("warmup")

	urls, err := forecast.PredictionURLs(cfg.Fetch.BaseURL, cfg.Warmup.Places)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid WARMUP_PLACES")
		return
	}

	result, err := warmup.NewWarmer(c, cfg.WarmupConfig()).WarmAll(ctx, urls)
	if err != nil {
		logger.Warn().Err(err).Msg("Warmup interrupted")
		return
	}

	level := zerolog.InfoLevel
	if len(result.Failed) > 0 {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).
		Int("warmed", result.Warmed).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("Warmup finished")
}
