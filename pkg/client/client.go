// Package client provides the network side of the request cache: a plain
// HTTP GET fetcher and a fixed-delay retry wrapper around it.
package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream fetches.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestcache_fetch_requests_total",
		Help: "Total upstream fetches by host and status",
	}, []string{"host", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "requestcache_fetch_duration_seconds",
		Help:    "Upstream fetch duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})
)

// Config holds the HTTP fetcher configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns a default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent: "request-cache/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// HTTPFetcher performs a single GET per call and returns the whole body.
// Non-2xx responses are returned as *StatusError.
type HTTPFetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "http-fetcher").Logger(),
	}
}

// Fetch performs a GET request to rawURL and returns the response body.
// Errors carry a stack trace for logging.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	host := hostLabel(req.URL)
	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	f.logger.Debug().Str("url", rawURL).Msg("Executing upstream request")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(host, "network_error").Inc()
		return nil, pkgerrors.Wrap(err, "http get")
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, pkgerrors.WithStack(&StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        rawURL,
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read response body")
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Upstream request completed")

	return body, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *HTTPFetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

func hostLabel(u *url.URL) string {
	if u == nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
