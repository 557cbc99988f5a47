package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

const panicBody = `{"statusCode":500,"message":"Internal server error","success":false,"errors":[]}`

// RequestLogger attaches a request-scoped logger and request id to the context,
// logs one line per request and turns panics into the JSON 500 envelope.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := incomingRequestID(r)
			w.Header().Set(RequestIDHeader, requestID)

			logger := base.With(
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client_ip", ClientIP(r)),
			)
			ctx := logging.WithRequestID(logging.WithLogger(r.Context(), logger), requestID)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered", "panic", rec)
					if ww.Status() == 0 {
						ww.Header().Set("Content-Type", "application/json")
						ww.WriteHeader(http.StatusInternalServerError)
						_, _ = ww.Write([]byte(panicBody))
					}
				}

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Log(ctx, completionLevel(status), "request completed",
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

func incomingRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLength {
		return uuid.NewString()
	}
	return id
}

func completionLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
