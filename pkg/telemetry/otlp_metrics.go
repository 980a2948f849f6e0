package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/storeledger/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const meterName = "storeledger"

// NewMeterProvider pushes OTLP metrics when OTEL_ENABLED is set. Otherwise it
// returns a no-op provider and Prometheus remains the only sink.
func NewMeterProvider(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.OtelEnabled || cfg.OTLPEndpoint == "" {
		return noop.NewMeterProvider(), nil
	}

	exporter, err := newMetricExporter(cfg.OTLPProtocol, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", cfg.AppVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down meter provider")
			return mp.Shutdown(ctx)
		},
	})
	return mp, nil
}

func newMetricExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(), otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
	case "grpc", "grpc/protobuf", "":
		return otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// otelInstruments mirrors the counters that matter off-box.
type otelInstruments struct {
	mutations metric.Int64Counter
	syncRuns  metric.Int64Counter
	dispatch  metric.Int64Counter
}

func newOtelInstruments(mp metric.MeterProvider) (*otelInstruments, error) {
	meter := mp.Meter(meterName)

	mutations, err := meter.Int64Counter("storeledger.ledger.mutations",
		metric.WithDescription("Ledger mutations by operation and outcome."))
	if err != nil {
		return nil, err
	}
	syncRuns, err := meter.Int64Counter("storeledger.sync.runs",
		metric.WithDescription("Cloud sync runs by status."))
	if err != nil {
		return nil, err
	}
	dispatch, err := meter.Int64Counter("storeledger.outbox.dispatched",
		metric.WithDescription("Outbox operations replayed by status."))
	if err != nil {
		return nil, err
	}
	return &otelInstruments{mutations: mutations, syncRuns: syncRuns, dispatch: dispatch}, nil
}

// NewInstrumentedMetrics registers the Prometheus metrics and mirrors the key
// counters to the OTLP meter provider.
func NewInstrumentedMetrics(reg prometheus.Registerer, mp metric.MeterProvider) (*Metrics, error) {
	m := NewMetrics(reg)
	if mp == nil {
		return m, nil
	}
	inst, err := newOtelInstruments(mp)
	if err != nil {
		return nil, err
	}
	m.otel = inst
	return m, nil
}

func (i *otelInstruments) addMutation(operation, status string) {
	if i == nil {
		return
	}
	i.mutations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

func (i *otelInstruments) addSync(status string) {
	if i == nil {
		return
	}
	i.syncRuns.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func (i *otelInstruments) addDispatch(status string, count int) {
	if i == nil {
		return
	}
	i.dispatch.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("status", status)))
}
