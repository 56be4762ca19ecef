// Package config provides configuration loading for the Plex exporter.
// It supports loading from properties/INI files with environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// EnvConfigPath names an explicit config file location.
const EnvConfigPath = "PLEX_EXPORTER_CONFIG"

// Config holds all configuration options for the exporter.
type Config struct {
	PlexURL        string
	PlexToken      string
	PlexSkipVerify bool
	// PlexAPIRateLimit is in requests per second; 0 disables limiting.
	PlexAPIRateLimit float64

	ExporterPort    int
	ScrapeInterval  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel     string
	DebugEnabled bool

	OTELMetricsEnabled      bool
	OTELMetricsEndpoint     string
	OTELMetricsProtocol     string
	OTELMetricsPushInterval time.Duration
	OTELMetricsInsecure     bool
}

// ConfigError reports an invalid or missing setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// defaultConfig returns a Config with hardcoded defaults.
func defaultConfig() *Config {
	return &Config{
		ExporterPort:            9595,
		ScrapeInterval:          60 * time.Second,
		RequestTimeout:          10 * time.Second,
		ShutdownTimeout:         10 * time.Second,
		LogLevel:                "INFO",
		OTELMetricsEndpoint:     "localhost:4317",
		OTELMetricsProtocol:     "grpc",
		OTELMetricsPushInterval: 60 * time.Second,
	}
}

// setting binds one ini key and its environment variable to a Config field.
type setting struct {
	key   string
	env   string
	apply func(cfg *Config, value string) error
}

var settings = []setting{
	{"plex_url", "PLEX_URL", func(c *Config, v string) error { c.PlexURL = v; return nil }},
	{"plex_token", "PLEX_TOKEN", func(c *Config, v string) error { c.PlexToken = v; return nil }},
	{"plex_skip_verify", "PLEX_SKIP_VERIFY", boolean(func(c *Config) *bool { return &c.PlexSkipVerify })},
	{"plex_api_rate_limit", "PLEX_API_RATE_LIMIT", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.PlexAPIRateLimit = f
		return err
	}},
	{"exporter_port", "EXPORTER_PORT", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.ExporterPort = n
		return err
	}},
	{"scrape_interval_seconds", "SCRAPE_INTERVAL_SECONDS", seconds(func(c *Config) *time.Duration { return &c.ScrapeInterval })},
	{"request_timeout_seconds", "REQUEST_TIMEOUT_SECONDS", seconds(func(c *Config) *time.Duration { return &c.RequestTimeout })},
	{"shutdown_timeout_seconds", "SHUTDOWN_TIMEOUT_SECONDS", seconds(func(c *Config) *time.Duration { return &c.ShutdownTimeout })},
	{"log_level", "LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = strings.ToUpper(v); return nil }},
	{"debug_enabled", "DEBUG_ENABLED", boolean(func(c *Config) *bool { return &c.DebugEnabled })},
	{"otel_metrics_enabled", "OTEL_METRICS_ENABLED", boolean(func(c *Config) *bool { return &c.OTELMetricsEnabled })},
	{"otel_metrics_endpoint", "OTEL_METRICS_ENDPOINT", func(c *Config, v string) error { c.OTELMetricsEndpoint = v; return nil }},
	{"otel_metrics_protocol", "OTEL_METRICS_PROTOCOL", func(c *Config, v string) error { c.OTELMetricsProtocol = strings.ToLower(v); return nil }},
	{"otel_metrics_push_interval_seconds", "OTEL_METRICS_PUSH_INTERVAL_SECONDS", seconds(func(c *Config) *time.Duration { return &c.OTELMetricsPushInterval })},
	{"otel_metrics_insecure", "OTEL_METRICS_INSECURE", boolean(func(c *Config) *bool { return &c.OTELMetricsInsecure })},
}

func seconds(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = time.Duration(n) * time.Second
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "t", "y", "yes":
		return true, nil
	case "false", "0", "f", "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}

// LoadConfig loads configuration from the specified file path.
// Environment variables override file values.
// Precedence: environment variables > config file > defaults
// The result is not validated; call Validate before use.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	// Try to load config file
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}

			section := iniFile.Section("")
			for _, s := range settings {
				if !section.HasKey(s.key) {
					continue
				}
				value := strings.TrimSpace(section.Key(s.key).String())
				if value == "" {
					continue
				}
				if err := s.apply(cfg, value); err != nil {
					return nil, &ConfigError{Field: s.key, Reason: fmt.Sprintf("invalid value %q in %s", value, path), Err: err}
				}
			}
		} else if !os.IsNotExist(err) {
			// File exists but can't be read
			return nil, fmt.Errorf("cannot access config file %s: %w", path, err)
		}
		// If file doesn't exist, just use defaults (no error)
	}

	// Override with environment variables
	for _, s := range settings {
		value := strings.TrimSpace(os.Getenv(s.env))
		if value == "" {
			continue
		}
		if err := s.apply(cfg, value); err != nil {
			return nil, &ConfigError{Field: s.env, Reason: fmt.Sprintf("invalid value %q", value), Err: err}
		}
	}

	return cfg, nil
}

// LoadConfigWithDefaults tries to load configuration from default locations.
// It checks locations in order:
// 1. $PLEX_EXPORTER_CONFIG
// 2. /etc/plex-exporter/exporter.conf
// 3. ./exporter.conf (current directory)
// 4. Hardcoded defaults
//
// Environment variables override file values.
func LoadConfigWithDefaults() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, &ConfigError{Field: EnvConfigPath, Reason: "config file not found", Err: err}
		}
		return LoadConfig(path)
	}

	defaultPaths := []string{
		"/etc/plex-exporter/exporter.conf",
		"./exporter.conf",
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(path)
		}
	}

	// No config file found, use defaults with env var overrides
	return LoadConfig("")
}

// Validate checks required settings and ranges. It returns a *ConfigError for the
// first problem found.
func (c *Config) Validate() error {
	if c.PlexURL == "" {
		return &ConfigError{Field: "PLEX_URL", Reason: "must be set"}
	}
	u, err := url.Parse(c.PlexURL)
	if err != nil {
		return &ConfigError{Field: "PLEX_URL", Reason: "not a valid URL", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "PLEX_URL", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return &ConfigError{Field: "PLEX_URL", Reason: "missing host"}
	}
	if c.PlexToken == "" {
		return &ConfigError{Field: "PLEX_TOKEN", Reason: "must be set"}
	}
	if math.IsNaN(c.PlexAPIRateLimit) || math.IsInf(c.PlexAPIRateLimit, 0) {
		return &ConfigError{Field: "PLEX_API_RATE_LIMIT", Reason: "must be a finite number"}
	}
	if c.PlexAPIRateLimit < 0 {
		return &ConfigError{Field: "PLEX_API_RATE_LIMIT", Reason: "must not be negative"}
	}
	if c.ExporterPort < 1 || c.ExporterPort > 65535 {
		return &ConfigError{Field: "EXPORTER_PORT", Reason: fmt.Sprintf("%d is outside 1-65535", c.ExporterPort)}
	}
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"SCRAPE_INTERVAL_SECONDS", c.ScrapeInterval},
		{"REQUEST_TIMEOUT_SECONDS", c.RequestTimeout},
		{"SHUTDOWN_TIMEOUT_SECONDS", c.ShutdownTimeout},
		{"OTEL_METRICS_PUSH_INTERVAL_SECONDS", c.OTELMetricsPushInterval},
	} {
		if d.value <= 0 {
			return &ConfigError{Field: d.field, Reason: "must be positive"}
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "LOG_LEVEL", Reason: err.Error()}
	}
	if c.OTELMetricsProtocol != "grpc" && c.OTELMetricsProtocol != "http" {
		return &ConfigError{Field: "OTEL_METRICS_PROTOCOL", Reason: fmt.Sprintf("unsupported protocol %q", c.OTELMetricsProtocol)}
	}
	if c.OTELMetricsEnabled && c.OTELMetricsEndpoint == "" {
		return &ConfigError{Field: "OTEL_METRICS_ENDPOINT", Reason: "must be set when OTEL metrics are enabled"}
	}
	return nil
}

// ParseLogLevel maps a level name to an slog level. WARNING is accepted as WARN.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
