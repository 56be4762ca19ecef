package metrics

import (
	"bytes"
	"log/slog"
	"net/http"
)

// ContentType is the media type of the text exposition format.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Snapshotter is the read side of the registry used by the /metrics handler.
type Snapshotter interface {
	Snapshot() *MetricsData
}

// Handler returns an HTTP handler for the /metrics endpoint.
// It only reads the registry snapshot and never waits on a collection cycle.
func Handler(source Snapshotter, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// Only accept GET requests
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var buf bytes.Buffer
		if err := WritePrometheus(&buf, source.Snapshot()); err != nil {
			logger.Error("failed to render metrics", "error", err)
			http.Error(w, "Failed to render metrics", http.StatusInternalServerError)
			return
		}

		// Write response
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			logger.Warn("failed to write metrics response", "error", err)
		}
	}
}

// RegisterMetricsHandler registers the /metrics endpoint on the provided mux
func RegisterMetricsHandler(mux *http.ServeMux, source Snapshotter, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux.Handle("/metrics", Handler(source, logger))
	logger.Info("metrics handler registered", "path", "/metrics")
}
