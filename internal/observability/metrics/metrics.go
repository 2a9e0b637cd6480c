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
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
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
	commits          metric.Int64Counter
	commitsRejected  metric.Int64Counter
	commitDuration   metric.Float64Histogram
	shardAssignments metric.Int64Counter
	shardsCreated    metric.Int64Counter
	batchSavings     metric.Int64Counter
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

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
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
		name = "trackway"
	}
	meter := provider.Meter(name)

	commits, err := meter.Int64Counter("trackway_ledger_commits_total")
	if err != nil {
		return nil, err
	}
	commitsRejected, err := meter.Int64Counter("trackway_ledger_commits_rejected_total")
	if err != nil {
		return nil, err
	}
	commitDuration, err := meter.Float64Histogram("trackway_ledger_commit_duration_ms")
	if err != nil {
		return nil, err
	}
	shardAssignments, err := meter.Int64Counter("trackway_shard_assignments_total")
	if err != nil {
		return nil, err
	}
	shardsCreated, err := meter.Int64Counter("trackway_shards_created_total")
	if err != nil {
		return nil, err
	}
	batchSavings, err := meter.Int64Counter("trackway_batch_savings_units_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		commits:          commits,
		commitsRejected:  commitsRejected,
		commitDuration:   commitDuration,
		shardAssignments: shardAssignments,
		shardsCreated:    shardsCreated,
		batchSavings:     batchSavings,
	}, nil
}

// IncCommit counts an acknowledged ledger commit.
func (m *Metrics) IncCommit(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// IncCommitRejected counts a transition rejected before commit.
func (m *Metrics) IncCommitRejected(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.commitsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ObserveCommitDuration records the wall time of one commit.
func (m *Metrics) ObserveCommitDuration(ctx context.Context, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(attribute.String("kind", kind)))
}

// IncShardAssignment counts a shard selection, flagging overflow placements
// so degraded assignments stay observable.
func (m *Metrics) IncShardAssignment(ctx context.Context, shardType string, overflow bool) {
	if m == nil {
		return
	}
	m.shardAssignments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("shard_type", shardType),
		attribute.Bool("overflow", overflow),
	))
}

// IncShardCreated counts auto-scaled and manually created shards.
func (m *Metrics) IncShardCreated(ctx context.Context, shardType string, autoScaled bool) {
	if m == nil {
		return
	}
	m.shardsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("shard_type", shardType),
		attribute.Bool("auto_scaled", autoScaled),
	))
}

// AddBatchSavings accumulates the modeled resource-unit savings of
// committed batches.
func (m *Metrics) AddBatchSavings(ctx context.Context, operationType string, savings int64) {
	if m == nil || savings <= 0 {
		return
	}
	m.batchSavings.Add(ctx, savings,
		metric.WithAttributes(attribute.String("operation_type", operationType)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
