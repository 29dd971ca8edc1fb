package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/request-cache/internal/config"
	"github.com/Sternrassler/request-cache/internal/testutil"
	"github.com/Sternrassler/request-cache/pkg/cache"
	"github.com/Sternrassler/request-cache/pkg/client"
)

const predictionPath = "/jsonPredConcellos.action"

var testStart = time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, upstream *testutil.MockUpstream, policy cache.ExpirationPolicy) (*server, *testutil.FakeClock) {
	t.Helper()

	clk := testutil.NewFakeClock(testStart)
	fetcher := client.NewRetrier(
		client.NewHTTPFetcher(client.DefaultConfig()),
		client.DefaultRetryConfig(),
		client.WithRetryClock(clk),
		client.WithRetryLogger(zerolog.Nop()),
	)
	c, err := cache.New(fetcher, policy, cache.WithClock(clk), cache.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}

	return newServer(c, upstream.URL(), zerolog.Nop()), clk
}

func rollingPolicy(t *testing.T, ttl time.Duration) cache.ExpirationPolicy {
	t.Helper()
	p, err := cache.NewRollingTTL(ttl)
	if err != nil {
		t.Fatalf("NewRollingTTL failed: %v", err)
	}
	return p
}

func do(t *testing.T, s *server, target string, header http.Header) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestHealthEndpoint(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	s, _ := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	resp := do(t, s, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "OK" {
		t.Errorf("Expected body 'OK', got %s", body)
	}
}

func TestForecastEndpoint_MissThenHit(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse(predictionPath, testutil.NewOKResponse(`{"predConcello":{"idConcello":15030}}`))
	s, clk := newTestServer(t, upstream, rollingPolicy(t, 10*time.Minute))

	resp := do(t, s, "/forecast/15030", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(cacheHeader); got != "miss" {
		t.Errorf("X-Cache = %q, want miss", got)
	}
	if body := readBody(t, resp); !strings.Contains(body, "15030") {
		t.Errorf("Unexpected body: %s", body)
	}

	clk.Advance(5 * time.Minute)
	resp = do(t, s, "/forecast/15030", nil)
	if got := resp.Header.Get(cacheHeader); got != "hit" {
		t.Errorf("X-Cache = %q, want hit", got)
	}
	readBody(t, resp)

	if n := upstream.PathCount(predictionPath); n != 1 {
		t.Errorf("Expected 1 upstream request, got %d", n)
	}

	// Past the TTL the entry is refreshed.
	clk.Advance(6 * time.Minute)
	resp = do(t, s, "/forecast/15030", nil)
	if got := resp.Header.Get(cacheHeader); got != "miss" {
		t.Errorf("X-Cache = %q, want miss after expiry", got)
	}
	readBody(t, resp)
	if n := upstream.PathCount(predictionPath); n != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", n)
	}
}

func TestForecastEndpoint_InvalidPlace(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	s, _ := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	resp := do(t, s, "/forecast/coruna", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	readBody(t, resp)
	if n := upstream.RequestCount(); n != 0 {
		t.Errorf("Expected no upstream request, got %d", n)
	}
}

func TestForecastEndpoint_UpstreamFailure(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse(predictionPath, testutil.NewServerErrorResponse())
	s, clk := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	resp := do(t, s, "/forecast/15030", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "retry attempts exhausted") {
		t.Errorf("Expected exhaustion detail, got %s", body)
	}

	if n := upstream.PathCount(predictionPath); n != 3 {
		t.Errorf("Expected 3 upstream attempts, got %d", n)
	}
	if n := clk.SleepCount(); n != 3 {
		t.Errorf("Expected 3 retry sleeps, got %d", n)
	}

	var status cacheStatus
	resp = do(t, s, "/cache/status?place=15030", nil)
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if status.Cached {
		t.Error("Failed fetch must not create an entry")
	}
}

func TestForecastEndpoint_FailedRefreshKeepsEntry(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetSequence(predictionPath,
		testutil.NewOKResponse(`{"v":1}`),
		testutil.NewServerErrorResponse(),
	)
	s, clk := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	readBody(t, do(t, s, "/forecast/15030", nil))
	clk.Advance(2 * time.Minute)

	resp := do(t, s, "/forecast/15030", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}
	readBody(t, resp)

	var status cacheStatus
	resp = do(t, s, "/cache/status?place=15030", nil)
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if !status.Cached || status.Fresh {
		t.Errorf("Expected the expired entry to remain, got %+v", status)
	}
	if status.StoredAt == nil || !status.StoredAt.Equal(testStart) {
		t.Errorf("StoredAt = %v, want %v", status.StoredAt, testStart)
	}
}

func TestCacheStatusEndpoint(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse(predictionPath, testutil.NewOKResponse(`{"v":1}`))
	policy, err := cache.NewCalendarReset(6, 18)
	if err != nil {
		t.Fatalf("NewCalendarReset failed: %v", err)
	}
	s, clk := newTestServer(t, upstream, policy)

	resp := do(t, s, "/cache/status", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without key, got %d", resp.StatusCode)
	}
	readBody(t, resp)

	readBody(t, do(t, s, "/forecast/15030", nil))

	key := upstream.URL() + predictionPath + "?idConc=15030"
	decode := func() cacheStatus {
		t.Helper()
		resp := do(t, s, "/cache/status?key="+url.QueryEscape(key), nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		var status cacheStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return status
	}

	status := decode()
	if !status.Cached || !status.Fresh {
		t.Errorf("Expected fresh cached entry, got %+v", status)
	}
	if status.Policy != "calendar(06,18)" {
		t.Errorf("Policy = %q, want calendar(06,18)", status.Policy)
	}
	if status.Bytes != len(`{"v":1}`) {
		t.Errorf("Bytes = %d", status.Bytes)
	}

	if status.AgeSeconds != 0 {
		t.Errorf("AgeSeconds = %v, want 0", status.AgeSeconds)
	}

	// 05:00 -> 06:00 crosses a reset hour.
	clk.Advance(time.Hour)
	status = decode()
	if status.Fresh {
		t.Errorf("Expected stale entry after reset hour, got %+v", status)
	}
	if status.AgeSeconds != 3600 {
		t.Errorf("AgeSeconds = %v, want 3600", status.AgeSeconds)
	}
}

func TestRequestIDHeader(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	s, _ := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	resp := do(t, s, "/health", nil)
	readBody(t, resp)
	generated := resp.Header.Get(requestIDHeader)
	if generated == "" {
		t.Fatal("Expected a generated X-Request-ID")
	}

	const id = "7f1d5c3e-6a1b-4b0e-9f3a-2d8c4e5f6a7b"
	resp = do(t, s, "/health", http.Header{requestIDHeader: []string{id}})
	readBody(t, resp)
	if got := resp.Header.Get(requestIDHeader); got != id {
		t.Errorf("X-Request-ID = %q, want %q", got, id)
	}

	resp = do(t, s, "/health", http.Header{requestIDHeader: []string{"not-a-uuid"}})
	readBody(t, resp)
	if got := resp.Header.Get(requestIDHeader); got == "not-a-uuid" || got == "" {
		t.Errorf("Expected invalid request id to be replaced, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	s, _ := newTestServer(t, upstream, rollingPolicy(t, time.Minute))

	readBody(t, do(t, s, "/forecast/15030", nil))

	resp := do(t, s, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	for _, name := range []string{"requestcache_misses_total", "requestcache_fetch_requests_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metric %s in output", name)
		}
	}
}

func TestFetchCommand(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse(predictionPath, testutil.NewOKResponse(`{"predConcello":{}}`))

	t.Setenv("UPSTREAM_BASE_URL", upstream.URL())
	t.Setenv("RETRY_DELAY", "0s")
	t.Setenv("REDIS_URL", "")

	var out, errOut bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"fetch", "--place", "15030"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if out.String() != `{"predConcello":{}}` {
		t.Errorf("Unexpected output: %s", out.String())
	}
	if got := upstream.LastUserAgent(); got != "forecast-proxy/0.1.0" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestFetchCommand_Failure(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse("/down", testutil.NewNotFoundResponse())

	t.Setenv("RETRY_DELAY", "0s")
	t.Setenv("RETRY_ATTEMPTS", "2")
	t.Setenv("REDIS_URL", "")

	cmd := newRootCmd("test")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"fetch", upstream.URL() + "/down"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Expected error for failing upstream")
	}
	if n := upstream.PathCount("/down"); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestRunServe_Shutdown(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{"PORT": "0"})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not shut down")
	}
}
