package debug

import (
	"log/slog"
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// LoggingMiddleware logs every request and response and records request statistics
// when debug mode is enabled. When disabled, it passes straight through.
//
// Example output:
//
//	level=DEBUG msg="http request" component=http method=GET path=/metrics remote=127.0.0.1:54321
//	level=DEBUG msg="http response" component=http method=GET path=/metrics status=200 size=1234 duration=1.2ms
func LoggingMiddleware(debugConfig *DebugConfig, logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !debugConfig.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

		rw := &responseWriter{
			ResponseWriter: w,
			status:         http.StatusOK, // Default status if WriteHeader not called
		}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logger.Debug("http response",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"size", rw.size,
			"duration", duration)

		debugConfig.RecordRequest(r.URL.Path, rw.status, duration)
	})
}
