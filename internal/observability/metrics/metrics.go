// Package metrics exposes OpenTelemetry instruments for the
// reconciliation engine. The Metrics handle is an optional dependency:
// every record method is a no-op on a nil receiver.
package metrics

import (
	"context"
	"fmt"
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
	decisions   metric.Int64Counter
	escalations metric.Int64Counter
	allocations metric.Int64Counter
	reversals   metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "reconcile"
	}
	meter := provider.Meter(name)

	decisions, err := meter.Int64Counter("reconcile_match_decisions_total")
	if err != nil {
		return nil, err
	}
	escalations, err := meter.Int64Counter("reconcile_escalations_total")
	if err != nil {
		return nil, err
	}
	allocations, err := meter.Int64Counter("reconcile_allocations_total")
	if err != nil {
		return nil, err
	}
	reversals, err := meter.Int64Counter("reconcile_reversals_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisions:   decisions,
		escalations: escalations,
		allocations: allocations,
		reversals:   reversals,
	}, nil
}

// RecordDecision increments match decision counts by action and source.
func (m *Metrics) RecordDecision(ctx context.Context, action, source string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("source", strings.TrimSpace(source)),
	))
}

// RecordEscalation increments escalation counts by reason code.
func (m *Metrics) RecordEscalation(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.escalations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", strings.TrimSpace(code)),
	))
}

// RecordAllocation increments allocation counts by match type.
func (m *Metrics) RecordAllocation(ctx context.Context, matchType string) {
	if m == nil {
		return
	}
	m.allocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("match_type", strings.TrimSpace(matchType)),
	))
}

// RecordReversal increments reversal counts.
func (m *Metrics) RecordReversal(ctx context.Context) {
	if m == nil {
		return
	}
	m.reversals.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter protocol %q", protocol)
	}
}
