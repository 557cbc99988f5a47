package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidtube_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidtube_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidtube_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by scope",
		},
		[]string{"scope"},
	)

	mediaUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidtube_media_upload_bytes_total",
			Help: "Bytes accepted for upload to the media host, by field",
		},
		[]string{"field"},
	)
)

// Metrics returns a middleware that records Prometheus request metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			path := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// RecordRateLimited counts a request rejected by the limiter for scope.
func RecordRateLimited(scope string) {
	rateLimitedTotal.WithLabelValues(scope).Inc()
}

// RecordUpload counts bytes received for an upload field.
func RecordUpload(field string, size int64) {
	if size > 0 {
		mediaUploadBytes.WithLabelValues(field).Add(float64(size))
	}
}

// unmatchedRoute labels requests no route claimed.
const unmatchedRoute = "unmatched"

// routePattern returns the chi route template so ids and scanner paths do not
// grow label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
