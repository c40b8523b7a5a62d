package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	constants "vpsdash/config"
	"vpsdash/internal/health"
)

// SnapshotSource is where the OTLP gauges read from on every collection
type SnapshotSource interface {
	Current() health.Snapshot
	Initialized() bool
}

// OTelConfig configures the OTLP/HTTP metric exporter
type OTelConfig struct {
	// Endpoint is host:port, or a full URL when it carries a scheme
	Endpoint string
	Token    string
	Hostname string
	Version  string
	Interval time.Duration
}

// OTelExporter periodically pushes probe gauges over OTLP/HTTP
type OTelExporter struct {
	provider *sdkmetric.MeterProvider
}

// StartOTel creates the exporter and registers the observable gauges
func StartOTel(ctx context.Context, cfg OTelConfig, src SnapshotSource) (*OTelExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	opts := []otlpmetrichttp.Option{
		// Retry configuration for resilience
		otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  2 * time.Minute,
		}),
		otlpmetrichttp.WithTimeout(30 * time.Second),
	}
	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlpmetrichttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts,
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithURLPath(constants.OTLP_PATH),
		)
	}
	if cfg.Token != "" {
		opts = append(opts, otlpmetrichttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.Token,
		}))
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = constants.DEFAULT_OTLP_INTERVAL * time.Second
	}

	provider, err := newMeterProvider(cfg, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), src)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}
	return &OTelExporter{provider: provider}, nil
}

func newMeterProvider(cfg OTelConfig, reader sdkmetric.Reader, src SnapshotSource) (*sdkmetric.MeterProvider, error) {
	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	// built without resource.Default() to avoid schema URL conflicts
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(constants.SERVICE_NAME),
		semconv.ServiceVersion(version),
		semconv.HostName(hostname),
		attribute.String("os.type", runtime.GOOS),
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	meter := provider.Meter("vpsdash/agent", metric.WithInstrumentationVersion(version))
	if err := registerGauges(meter, src); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return provider, nil
}

func registerGauges(meter metric.Meter, src SnapshotSource) error {
	_, err := meter.Int64ObservableGauge(
		"vpsdash.probe.status",
		metric.WithDescription("Probe status severity (0 UNKNOWN, 1 OK, 2 WARN, 3 CRIT)"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			if !src.Initialized() {
				return nil
			}
			s := src.Current()
			for _, r := range s.Results {
				o.Observe(int64(r.Status.Severity()), metric.WithAttributes(attribute.String("probe", r.Name)))
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = meter.Float64ObservableGauge(
		"vpsdash.probe.value",
		metric.WithDescription("Last numeric value reported by a probe"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			if !src.Initialized() {
				return nil
			}
			for _, r := range src.Current().Results {
				if v, ok := numeric(r); ok {
					o.Observe(v, metric.WithAttributes(attribute.String("probe", r.Name)))
				}
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = meter.Float64ObservableGauge(
		"vpsdash.snapshot.age",
		metric.WithDescription("Age of the current snapshot"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			if !src.Initialized() {
				return nil
			}
			o.Observe(src.Current().Age(time.Now()).Seconds())
			return nil
		}),
	)
	return err
}

// ForceFlush exports pending data immediately
func (e *OTelExporter) ForceFlush(ctx context.Context) error {
	return e.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the exporter
func (e *OTelExporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
