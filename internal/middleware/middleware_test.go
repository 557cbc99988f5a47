package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vidtube/backend/internal/logging"
)

func TestIPRateLimiterAllowsBurstThenRejects(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Minute, 2, time.Hour)
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("login:1.1.1.1") || !limiter.Allow("login:1.1.1.1") {
		t.Fatal("expected burst of two to be allowed")
	}
	if limiter.Allow("login:1.1.1.1") {
		t.Fatal("expected third request to be rejected")
	}
	if !limiter.Allow("login:2.2.2.2") {
		t.Fatal("expected other clients to be unaffected")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("login:1.1.1.1") {
		t.Fatal("expected token to refill after the window")
	}
}

func TestIPRateLimiterForgetsIdleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Hour, 1, time.Minute)
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("a")
	now = now.Add(2 * time.Minute)
	limiter.Allow("b")

	limiter.mu.Lock()
	_, stillThere := limiter.buckets["a"]
	limiter.mu.Unlock()
	if stillThere {
		t.Fatal("expected idle visitor to be collected")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, time.Hour, 1, time.Hour)
	rejected := 0
	handler := RateLimit(limiter, "login", func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d got %d", i, want, rec.Code)
		}
	}
	if rejected != 1 {
		t.Fatalf("expected one rejection, got %d", rejected)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected peer address, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
	if got := RateLimitKey(req, "refresh"); got != "refresh:203.0.113.7" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthcheck", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected request id to propagate, ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["status"] != float64(http.StatusCreated) || entry["request_id"] != "abc-123" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics())
	router.Get("/videos/{videoId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	routed := httpRequestsTotal.WithLabelValues(http.MethodGet, "/videos/{videoId}", "200")
	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	routedBefore := testutil.ToFloat64(routed)
	unmatchedBefore := testutil.ToFloat64(unmatched)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/6f1c2a52-9a51-4b8e-a9f4-3f0a2c1b7d10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	for _, path := range []string{"/wp-admin/setup.php", "/.env", "/unrouted/6f1c2a52-9a51-4b8e-a9f4-3f0a2c1b7d10"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 got %d", path, rec.Code)
		}
	}

	if got := testutil.ToFloat64(routed) - routedBefore; got != 1 {
		t.Fatalf("expected one request under the route template, got %v", got)
	}
	if got := testutil.ToFloat64(unmatched) - unmatchedBefore; got != 3 {
		t.Fatalf("expected unrouted requests to share one label, got %v", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/anything/at/all", nil)
	if got := routePattern(req); got != unmatchedRoute {
		t.Fatalf("expected %q without a route context, got %q", unmatchedRoute, got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/videos", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected origin to be allowed, headers=%v", rec.Header())
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}
}
