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

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	Plant            string
}

// Metrics holds the roll lifecycle instruments. A nil *Metrics records
// nothing, so services can run without a provider.
type Metrics struct {
	plant []attribute.KeyValue

	outputRolls       metric.Int64Counter
	inputRollsEnded   metric.Int64Counter
	reconciliations   metric.Int64Counter
	reconciledWeight  metric.Float64Counter
	sequenceConflicts metric.Int64Counter
	erpPostings       metric.Int64Counter
}

// NewProvider registers the global meter provider. Disabled config yields a
// noop provider.
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
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("otel metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "millroll"
	}
	meter := provider.Meter(name)

	var firstErr error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("counter %s: %w", name, err)
		}
		return c
	}

	m := &Metrics{
		outputRolls:       counter("millroll_output_rolls_created_total", "Output rolls created."),
		inputRollsEnded:   counter("millroll_input_rolls_ended_total", "Input rolls ended with a goods issue."),
		reconciliations:   counter("millroll_reconciliations_total", "Final weight reconciliations by outcome."),
		sequenceConflicts: counter("millroll_sequence_conflicts_total", "Batch code collisions that forced a new allocation."),
		erpPostings:       counter("millroll_erp_postings_total", "ERP calls by kind and journal status."),
	}
	weight, err := meter.Float64Counter("millroll_reconciled_net_weight_kg_total",
		metric.WithDescription("Net weight of reconciled output rolls."),
		metric.WithUnit("kg"),
	)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	m.reconciledWeight = weight
	if firstErr != nil {
		return nil, firstErr
	}

	if plant := strings.TrimSpace(cfg.Plant); plant != "" {
		m.plant = []attribute.KeyValue{attribute.String("plant", plant)}
	}
	return m, nil
}

func (m *Metrics) attrs(extra ...attribute.KeyValue) metric.AddOption {
	all := append(FilterAttributes(extra...), m.plant...)
	return metric.WithAttributes(all...)
}

func (m *Metrics) RecordOutputRoll(ctx context.Context, machine string) {
	if m == nil {
		return
	}
	m.outputRolls.Add(ctx, 1, m.attrs(attribute.String("machine", strings.TrimSpace(machine))))
}

func (m *Metrics) RecordInputRollEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.inputRollsEnded.Add(ctx, 1, m.attrs())
}

// RecordReconciliation counts one final weight attempt. netKg is added to
// the weight total only for a successful outcome.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string, netKg float64) {
	if m == nil {
		return
	}
	outcome = strings.TrimSpace(outcome)
	m.reconciliations.Add(ctx, 1, m.attrs(attribute.String("outcome", outcome)))
	if outcome == "succeeded" && netKg > 0 {
		m.reconciledWeight.Add(ctx, netKg, m.attrs())
	}
}

func (m *Metrics) RecordSequenceConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.sequenceConflicts.Add(ctx, 1, m.attrs())
}

func (m *Metrics) RecordERPPosting(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.erpPostings.Add(ctx, 1, m.attrs(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Batch codes, order numbers and user ids are unbounded and must never become
// labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"machine":     {},
	"kind":        {},
	"status":      {},
	"outcome":     {},
	"status_code": {},
}

// FilterAttributes keeps only low-cardinality label keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
