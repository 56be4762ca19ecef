package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/bvboe/plex-exporter/collector"
	"github.com/bvboe/plex-exporter/config"
	"github.com/bvboe/plex-exporter/debug"
	"github.com/bvboe/plex-exporter/metrics"
	"github.com/bvboe/plex-exporter/plex"
	"github.com/bvboe/plex-exporter/scheduler"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("plex-exporter failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func run() error {
	cfg, err := config.LoadConfigWithDefaults()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting plex-exporter",
		"version", version,
		"port", cfg.ExporterPort,
		"scrape_interval", cfg.ScrapeInterval,
		"request_timeout", cfg.RequestTimeout)

	if cfg.PlexSkipVerify {
		logger.Warn("TLS certificate verification for the Plex server is DISABLED; this is insecure for non-local connections")
	}
	if cfg.PlexAPIRateLimit > 0 {
		logger.Info("plex API rate limiting enabled", "requests_per_second", cfg.PlexAPIRateLimit)
	}

	client, err := plex.NewClient(plex.ClientConfig{
		BaseURL:    cfg.PlexURL,
		Token:      cfg.PlexToken,
		SkipVerify: cfg.PlexSkipVerify,
		Timeout:    cfg.RequestTimeout,
		RateLimit:  cfg.PlexAPIRateLimit,
		Logger:     logger,
	})
	if err != nil {
		return &config.ConfigError{Field: "PLEX_URL", Reason: "cannot build Plex client", Err: err}
	}

	registry := metrics.NewRegistry()
	coll, err := collector.New(client, registry, logger, collector.Options{})
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial scrape so the first /metrics request already has data.
	logger.Info("performing initial metric collection")
	outcome, err := coll.Scrape(ctx)
	if err != nil {
		return fmt.Errorf("initial scrape failed: %w", err)
	}
	logger.Info("initial metric collection complete", "result", string(outcome.Result), "errors", outcome.Errors)

	sched := scheduler.New(logger)
	if err := sched.AddJob(coll,
		scheduler.NewIntervalSchedule(cfg.ScrapeInterval),
		scheduler.JobConfig{Enabled: true},
	); err != nil {
		return fmt.Errorf("failed to schedule scrapes: %w", err)
	}

	debugConfig := debug.NewDebugConfig(cfg.DebugEnabled)
	if debugConfig.IsEnabled() {
		if err := sched.AddJob(debug.NewStatsReporter(debugConfig, logger),
			scheduler.NewIntervalSchedule(cfg.ScrapeInterval),
			scheduler.JobConfig{Enabled: true},
		); err != nil {
			return fmt.Errorf("failed to schedule debug stats: %w", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	jobs := sched.GetJobs()
	slices.Sort(jobs)
	for _, name := range jobs {
		if next, err := sched.GetNextRun(name); err == nil {
			logger.Info("job scheduled", "job", name, "next_run", next.Format(time.RFC3339))
		}
	}

	var otelExporter *metrics.OTELExporter
	if cfg.OTELMetricsEnabled {
		logger.Info("initializing OpenTelemetry metrics exporter",
			"endpoint", cfg.OTELMetricsEndpoint,
			"protocol", cfg.OTELMetricsProtocol,
			"push_interval", cfg.OTELMetricsPushInterval)

		otelExporter, err = metrics.NewOTELExporter(ctx, registry, metrics.OTELConfig{
			Endpoint:     cfg.OTELMetricsEndpoint,
			Protocol:     metrics.OTELProtocol(cfg.OTELMetricsProtocol),
			PushInterval: cfg.OTELMetricsPushInterval,
			Insecure:     cfg.OTELMetricsInsecure,
			Version:      version,
		}, logger)
		if err != nil {
			logger.Warn("failed to initialize OTEL exporter, continuing without it", "error", err)
			otelExporter = nil
		}
	}

	mux := http.NewServeMux()
	metrics.RegisterMetricsHandler(mux, registry, logger)

	var handler http.Handler = mux
	if debugConfig.IsEnabled() {
		handler = debug.LoggingMiddleware(debugConfig, logger, mux)
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ExporterPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// SIGHUP requests an immediate scrape; it is skipped if one is already running.
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	defer signal.Stop(hupChan)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("plex-exporter listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
wait:
	for {
		select {
		case <-hupChan:
			logger.Info("manual scrape requested")
			if err := sched.RunJobNow(collector.JobName); err != nil {
				logger.Warn("manual scrape not started", "error", err)
			}
		case sig := <-sigChan:
			logger.Info("shutdown signal received, shutting down gracefully", "signal", sig.String())
			break wait
		case err := <-serverErr:
			runErr = fmt.Errorf("http server error: %w", err)
			break wait
		}
	}

	// In-flight /metrics requests get the grace period before the listener is released.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error during HTTP shutdown", "error", err)
	}

	if err := sched.Stop(); err != nil {
		logger.Warn("error stopping scheduler", "error", err)
	}

	if otelExporter != nil {
		logger.Info("shutting down OpenTelemetry exporter")
		if err := otelExporter.Shutdown(context.Background()); err != nil {
			logger.Warn("error shutting down OTEL exporter", "error", err)
		}
	}

	cancel()
	logger.Info("plex-exporter stopped")
	return runErr
}
