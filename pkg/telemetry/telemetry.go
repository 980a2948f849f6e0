package telemetry

import (
	"context"
	"time"

	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires telemetry components via Fx.
var Module = fx.Module("telemetry",
	fx.Provide(NewTracerProvider),
	fx.Provide(NewMeterProvider),
	fx.Provide(NewInstrumentedMetrics),
	fx.Provide(DefaultRegisterer),
	fx.Invoke(func(*trace.TracerProvider) {}),
)

// NewTracerProvider configures the OTLP exporter and tracer provider. Without OTEL_ENABLED the
// provider samples nothing and exports nowhere, but spans still carry correlation ids.
func NewTracerProvider(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*trace.TracerProvider, error) {
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

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(&correlationSpanProcessor{}),
	}

	if cfg.OtelEnabled && cfg.OTLPEndpoint != "" {
		exporter, err := newExporter(cfg.OTLPProtocol, cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	} else {
		opts = append(opts, trace.WithSampler(trace.NeverSample()))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer provider")
			return tp.Shutdown(ctx)
		},
	})

	logger.Info("telemetry initialized",
		zap.Bool("export_enabled", cfg.OtelEnabled),
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("protocol", cfg.OTLPProtocol),
	)
	return tp, nil
}

func newExporter(protocol, endpoint string) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if protocol == "http" || protocol == "http/protobuf" {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
}

type correlationSpanProcessor struct{}

func (p *correlationSpanProcessor) OnStart(ctx context.Context, s trace.ReadWriteSpan) {
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		s.SetAttributes(attribute.String("correlation_id", cid))
	}
}

func (p *correlationSpanProcessor) OnEnd(trace.ReadOnlySpan) {}

func (p *correlationSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *correlationSpanProcessor) ForceFlush(context.Context) error { return nil }
