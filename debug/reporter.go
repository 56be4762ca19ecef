package debug

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// StatsJobName identifies the request statistics job in the scheduler.
const StatsJobName = "debug-request-stats"

// StatsReporter periodically logs the request statistics gathered by the logging
// middleware and starts a fresh window. It satisfies scheduler.Job.
type StatsReporter struct {
	config *DebugConfig
	logger *slog.Logger
}

// NewStatsReporter creates a reporter for config's statistics.
func NewStatsReporter(config *DebugConfig, logger *slog.Logger) *StatsReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsReporter{config: config, logger: logger.With("component", "http")}
}

// Name returns the job name.
func (r *StatsReporter) Name() string {
	return StatsJobName
}

// Run logs one summary line plus one line per path, then resets the counters.
// Windows with no requests are not logged.
func (r *StatsReporter) Run(ctx context.Context) error {
	if !r.config.IsEnabled() {
		return nil
	}
	stats := r.config.GetStats()
	r.config.ResetStats()
	if stats.RequestCount == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "http request stats",
		"requests", stats.RequestCount,
		"avg_duration", average(stats.TotalDuration, stats.RequestCount),
		"paths", len(stats.Paths))

	paths := make([]string, 0, len(stats.Paths))
	for path := range stats.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		ps := stats.Paths[path]
		r.logger.InfoContext(ctx, "http path stats",
			"path", path,
			"requests", ps.Count,
			"avg_duration", average(ps.TotalDuration, ps.Count),
			"last_status", ps.LastStatus,
			"last_access", ps.LastAccess.Format(time.RFC3339))
	}
	return nil
}

func average(total time.Duration, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
