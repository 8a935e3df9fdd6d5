package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	generationSubmitted metric.Int64Counter
	generationFinalized metric.Int64Counter
	creditsReserved     metric.Int64Counter
	creditsRefunded     metric.Int64Counter
	providerRequests    metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "genstudio"
	}
	meter := provider.Meter(name)

	counters := map[string]*metric.Int64Counter{}
	m := &Metrics{}
	counters["genstudio_generation_submitted_total"] = &m.generationSubmitted
	counters["genstudio_generation_finalized_total"] = &m.generationFinalized
	counters["genstudio_credits_reserved_total"] = &m.creditsReserved
	counters["genstudio_credits_refunded_total"] = &m.creditsRefunded
	counters["genstudio_provider_requests_total"] = &m.providerRequests
	counters["genstudio_rate_limit_allowed_total"] = &m.rateLimitAllowed
	counters["genstudio_rate_limit_denied_total"] = &m.rateLimitDenied

	for name, target := range counters {
		counter, err := meter.Int64Counter(name)
		if err != nil {
			return nil, err
		}
		*target = counter
	}

	return m, nil
}

// RecordGenerationSubmitted counts jobs accepted for dispatch.
func (m *Metrics) RecordGenerationSubmitted(ctx context.Context, kind, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("provider", strings.TrimSpace(provider)),
	)
	m.generationSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGenerationFinalized counts terminal transitions by outcome.
func (m *Metrics) RecordGenerationFinalized(ctx context.Context, kind, provider, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.generationFinalized.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCreditsReserved(ctx context.Context, reason string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.creditsReserved.Add(ctx, amount, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCreditsRefunded(ctx context.Context, reason string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.creditsRefunded.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordProviderRequest counts upstream HTTP attempts. statusCode 0 means a transport error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider string, statusCode int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status_code", strconv.Itoa(statusCode)),
	)
	m.providerRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":        {},
	"provider":    {},
	"status":      {},
	"status_code": {},
	"endpoint":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
