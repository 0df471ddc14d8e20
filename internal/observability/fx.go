package observability

import (
	"github.com/smallbiznis/millroll/internal/observability/logger"
	"github.com/smallbiznis/millroll/internal/observability/metrics"
	"github.com/smallbiznis/millroll/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName: cfg.ServiceName,
				Environment: cfg.Environment,
				Version:     cfg.Version,
				Plant:       cfg.Plant,
				Level:       cfg.LogLevel,
				Format:      cfg.LogFormat,
				Debug:       cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				Plant:            cfg.Plant,
				ExporterEndpoint: cfg.OtelEndpoint,
				ExporterProtocol: cfg.OtelProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.OtelEnabled,
				ExporterEndpoint: cfg.OtelEndpoint,
				ExporterProtocol: cfg.OtelProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
				Plant:            cfg.Plant,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Tracer provider must be built for outbound ERP spans even when
	// nothing else depends on it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.PostingWithConfig(cfg) }),
)
