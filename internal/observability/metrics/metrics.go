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
	cubegenSubmissions metric.Int64Counter
	callbackEvents     metric.Int64Counter
	ledgerMutations    metric.Int64Counter
	punitsCharged      metric.Int64Counter
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
		name = "cubehub"
	}
	meter := provider.Meter(name)

	cubegenSubmissions, err := meter.Int64Counter("cubehub_cubegen_submissions_total")
	if err != nil {
		return nil, err
	}
	callbackEvents, err := meter.Int64Counter("cubehub_callback_events_total")
	if err != nil {
		return nil, err
	}
	ledgerMutations, err := meter.Int64Counter("cubehub_ledger_mutations_total")
	if err != nil {
		return nil, err
	}
	punitsCharged, err := meter.Int64Counter("cubehub_punits_charged_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cubegenSubmissions: cubegenSubmissions,
		callbackEvents:     callbackEvents,
		ledgerMutations:    ledgerMutations,
		punitsCharged:      punitsCharged,
	}, nil
}

// RecordSubmission counts one cubegen submission attempt.
func (m *Metrics) RecordSubmission(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.cubegenSubmissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordCallback counts one received progress event.
func (m *Metrics) RecordCallback(ctx context.Context, sender string) {
	if m == nil {
		return
	}
	m.callbackEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sender", sender),
	))
}

// RecordLedgerMutation counts one accepted ledger operation.
func (m *Metrics) RecordLedgerMutation(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.ledgerMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

// RecordPunitsCharged accumulates punits debited from user balances.
func (m *Metrics) RecordPunitsCharged(ctx context.Context, punits int64) {
	if m == nil || punits <= 0 {
		return
	}
	m.punitsCharged.Add(ctx, punits)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
