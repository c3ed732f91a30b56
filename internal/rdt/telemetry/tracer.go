// Package telemetry wraps OpenTelemetry tracing for a single file transfer:
// one root span per transfer, child events for every retransmission,
// timeout, and congestion-state transition.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config controls whether and where spans are exported. Disabled by
// default: a transfer over localhost during development has no collector
// to send to.
type Config struct {
	Enable       bool    `yaml:"enable"`
	ServiceName  string  `yaml:"service_name"`
	Endpoint     string  `yaml:"endpoint"`
	Exporter     string  `yaml:"exporter"` // "jaeger" or "zipkin"
	SampleRate   float64 `yaml:"sample_rate"`
	BatchTimeout int     `yaml:"batch_timeout_seconds"`
	MaxQueueSize int     `yaml:"max_queue_size"`
}

// DefaultConfig returns tracing disabled: a transfer over localhost during
// development has no collector to send spans to.
func DefaultConfig() *Config {
	return &Config{
		Enable:       false,
		ServiceName:  "rdt-sender",
		Endpoint:     "http://localhost:14268/api/traces",
		Exporter:     "jaeger",
		SampleRate:   1.0,
		BatchTimeout: 5,
		MaxQueueSize: 2048,
	}
}

// Tracer is the per-process tracing handle. A disabled Tracer is a valid,
// inert zero-cost object: every method becomes a no-op.
type Tracer struct {
	config   *Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New builds a Tracer. When cfg.Enable is false, it returns immediately
// with no exporter wired up.
func New(cfg *Config, logger *zap.Logger) (*Tracer, error) {
	if !cfg.Enable {
		logger.Debug("tracing disabled")
		return &Tracer{config: cfg, logger: logger}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create jaeger exporter: %w", err)
		}
	case "zipkin":
		exporter, err = zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create zipkin exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("telemetry: unsupported exporter %q", cfg.Exporter)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	batcher := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(time.Duration(cfg.BatchTimeout)*time.Second),
		sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(batcher),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing initialized",
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Tracer{
		config:   cfg,
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		logger:   logger,
	}, nil
}

// Shutdown flushes and tears down the exporter, if one was created.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartTransfer opens the root span for one file transfer.
func (t *Tracer) StartTransfer(ctx context.Context, correlationID, filePath string) (context.Context, trace.Span) {
	if !t.config.Enable || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "rdt.transfer",
		trace.WithAttributes(
			attribute.String("rdt.correlation_id", correlationID),
			attribute.String("rdt.file_path", filePath),
		),
	)
}

// AddEvent records a named event on the span carried by ctx — a
// retransmission, a timeout, or a congestion-state transition.
func (t *Tracer) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !t.config.Enable {
		return
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError attaches err to the span carried by ctx.
func (t *Tracer) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if !t.config.Enable || err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attrs...))
}

// IsEnabled reports whether tracing is active.
func (t *Tracer) IsEnabled() bool {
	return t.config.Enable
}
