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
	importRows   metric.Int64Counter
	importChunks metric.Int64Counter
	undoChunks   metric.Int64Counter
	undoRuns     metric.Int64Counter

	attrs []attribute.KeyValue
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
		name = "wealthdesk"
	}
	meter := provider.Meter(name)

	importRows, err := meter.Int64Counter("wealthdesk_import_rows_total")
	if err != nil {
		return nil, err
	}
	importChunks, err := meter.Int64Counter("wealthdesk_import_chunks_total")
	if err != nil {
		return nil, err
	}
	undoChunks, err := meter.Int64Counter("wealthdesk_undo_chunks_total")
	if err != nil {
		return nil, err
	}
	undoRuns, err := meter.Int64Counter("wealthdesk_undo_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		importRows:   importRows,
		importChunks: importChunks,
		undoChunks:   undoChunks,
		undoRuns:     undoRuns,
		attrs: []attribute.KeyValue{
			attribute.String("service", name),
			attribute.String("env", cfg.Environment),
		},
	}, nil
}

// RecordImportRow counts one processed row by classification outcome.
func (m *Metrics) RecordImportRow(ctx context.Context, importType, outcome string) {
	if m == nil {
		return
	}
	m.importRows.Add(ctx, 1, metric.WithAttributes(append(m.attrs,
		attribute.String("import_type", importType),
		attribute.String("outcome", outcome),
	)...))
}

// RecordImportChunk counts one committed import chunk.
func (m *Metrics) RecordImportChunk(ctx context.Context, importType string) {
	if m == nil {
		return
	}
	m.importChunks.Add(ctx, 1, metric.WithAttributes(append(m.attrs,
		attribute.String("import_type", importType),
	)...))
}

// RecordUndoChunk counts one committed undo chunk.
func (m *Metrics) RecordUndoChunk(ctx context.Context) {
	if m == nil {
		return
	}
	m.undoChunks.Add(ctx, 1, metric.WithAttributes(m.attrs...))
}

// RecordUndoRun counts one finished undo run by terminal status.
func (m *Metrics) RecordUndoRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.undoRuns.Add(ctx, 1, metric.WithAttributes(append(m.attrs,
		attribute.String("status", status),
	)...))
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
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}
