package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTELProtocol selects the OTLP transport.
type OTELProtocol string

const (
	OTELProtocolGRPC OTELProtocol = "grpc"
	OTELProtocolHTTP OTELProtocol = "http"
)

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	Endpoint     string
	Protocol     OTELProtocol
	PushInterval time.Duration
	Insecure     bool
	Version      string
}

// OTELExporter pushes the registry snapshot to an OpenTelemetry collector.
// Each registered family becomes an observable instrument read at collection time,
// so the pushed values are always the values /metrics would serve.
type OTELExporter struct {
	registry      *Registry
	meterProvider *sdkmetric.MeterProvider
	registration  metric.Registration
	logger        *slog.Logger
}

// NewOTELExporter creates an exporter for every family registered so far.
func NewOTELExporter(ctx context.Context, registry *Registry, config OTELConfig, logger *slog.Logger) (*OTELExporter, error) {
	exporter, err := newOTLPExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	// Create resource with service information
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("plex-exporter"),
			semconv.ServiceVersionKey.String(config.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(config.PushInterval))
	return newOTELExporterWithReader(registry, reader, res, logger)
}

func newOTLPExporter(ctx context.Context, config OTELConfig) (sdkmetric.Exporter, error) {
	switch config.Protocol {
	case OTELProtocolHTTP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	case OTELProtocolGRPC, "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
			opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", config.Protocol)
	}
}

func newOTELExporterWithReader(registry *Registry, reader sdkmetric.Reader, res *resource.Resource, logger *slog.Logger) (*OTELExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	meterProvider := sdkmetric.NewMeterProvider(opts...)
	meter := meterProvider.Meter("plex-exporter")

	instruments := make(map[string]metric.Float64Observable)
	observables := make([]metric.Observable, 0)
	for _, family := range registry.Snapshot().Families {
		var (
			inst metric.Float64Observable
			err  error
		)
		switch family.Type {
		case CounterType:
			inst, err = meter.Float64ObservableCounter(family.Name, metric.WithDescription(family.Help))
		default:
			inst, err = meter.Float64ObservableGauge(family.Name, metric.WithDescription(family.Help))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create instrument %s: %w", family.Name, err)
		}
		instruments[family.Name] = inst
		observables = append(observables, inst)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, family := range registry.Snapshot().Families {
			inst, ok := instruments[family.Name]
			if !ok {
				continue
			}
			for _, point := range family.Metrics {
				attrs := make([]attribute.KeyValue, 0, len(family.LabelNames))
				for _, name := range family.LabelNames {
					attrs = append(attrs, attribute.String(name, point.Labels[name]))
				}
				o.ObserveFloat64(inst, point.Value, metric.WithAttributes(attrs...))
			}
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("failed to register OTEL callback: %w", err)
	}

	return &OTELExporter{
		registry:      registry,
		meterProvider: meterProvider,
		registration:  registration,
		logger:        logger.With("component", "otel"),
	}, nil
}

// Shutdown flushes pending data and stops the exporter
func (e *OTELExporter) Shutdown(ctx context.Context) error {
	if err := e.registration.Unregister(); err != nil {
		e.logger.Warn("failed to unregister OTEL callback", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.meterProvider.Shutdown(ctx); err != nil {
		e.logger.Error("error shutting down OTEL meter provider", "error", err)
		return err
	}

	return nil
}
