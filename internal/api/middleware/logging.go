package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/pkg/logger"
)

// Logging logs one line per request. Health probes are logged at debug level.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status(ww)),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", clientIP(r)),
		}
		if uid, ok := UserID(r.Context()); ok {
			fields = append(fields, zap.String("user_id", uid.String()))
		}
		switch {
		case isProbe(r.URL.Path):
			logger.L().Debug("request", fields...)
		case status(ww) >= http.StatusInternalServerError:
			logger.L().Error("request", fields...)
		default:
			logger.L().Info("request", fields...)
		}
	})
}

// Metrics records request counts and latency by chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m := metrics.Global()
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status(ww))).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// status treats a handler that never wrote a header as 200.
func status(ww chimid.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
