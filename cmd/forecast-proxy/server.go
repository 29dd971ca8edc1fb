package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/request-cache/pkg/cache"
	"github.com/Sternrassler/request-cache/pkg/client"
	"github.com/Sternrassler/request-cache/pkg/forecast"
	"github.com/Sternrassler/request-cache/pkg/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	cacheHeader     = "X-Cache"
)

type server struct {
	cache   *cache.Cache
	baseURL string
	router  *chi.Mux
}

func newServer(c *cache.Cache, baseURL string, logger zerolog.Logger) *server {
	s := &server{
		cache:   c,
		baseURL: baseURL,
		router:  chi.NewRouter(),
	}

	r := s.router
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(requestID)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/forecast/{place}", s.handleForecast)
	r.Get("/cache/status", s.handleCacheStatus)

	return s
}

func (s *server) Handler() http.Handler {
	return s.router
}

// requestID keeps a valid incoming X-Request-ID or assigns a new one, echoes
// it on the response and adds it to the request logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) handleForecast(w http.ResponseWriter, r *http.Request) {
	key, err := forecast.PredictionURL(s.baseURL, chi.URLParam(r, "place"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	body, hit, err := s.cache.RequestWithStatus(ctx, key)
	if err != nil {
		logger := hlog.FromRequest(r)
		if ctx.Err() != nil {
			logger.Debug().Err(err).Str("key", key).Msg("Client went away")
			return
		}
		logger.Error().Err(err).Str("key", key).Msg("Forecast request failed")

		status := http.StatusBadGateway
		if !errors.Is(err, client.ErrRetryExhausted) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	if hit {
		w.Header().Set(cacheHeader, "hit")
	} else {
		w.Header().Set(cacheHeader, "miss")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type cacheStatus struct {
	Key        string     `json:"key"`
	Cached     bool       `json:"cached"`
	Fresh      bool       `json:"fresh"`
	StoredAt   *time.Time `json:"stored_at,omitempty"`
	AgeSeconds float64    `json:"age_seconds"`
	Bytes      int        `json:"bytes"`
	Policy     string     `json:"policy"`
}

// handleCacheStatus reports the stored entry for ?key=<url> or ?place=<code>
// without fetching.
func (s *server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if place := r.URL.Query().Get("place"); key == "" && place != "" {
		u, err := forecast.PredictionURL(s.baseURL, place)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		key = u
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key or place query parameter required"))
		return
	}

	status := cacheStatus{
		Key:    key,
		Policy: s.cache.Policy().String(),
	}

	entry, fresh, err := s.cache.Lookup(r.Context(), key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("Cache status lookup failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	default:
		storedAt := entry.StoredAt.UTC()
		status.Cached = true
		status.Fresh = fresh
		status.StoredAt = &storedAt
		status.AgeSeconds = entry.Age(s.cache.Clock().Now()).Seconds()
		status.Bytes = len(entry.Payload)
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":  http.StatusText(status),
		"detail": err.Error(),
	})
}
