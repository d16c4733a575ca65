// Package tracing wires an OpenTelemetry tracer provider backed by a
// logging exporter: no network exporter is wired in, since every span this
// pipeline produces is diagnostic, not meant to leave the process.
package tracing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures the tracing manager.
type Config struct {
	Enabled     bool
	ServiceName string
	SampleRate  float64
}

// DefaultConfig returns sensible defaults: tracing off, full sampling when
// enabled.
func DefaultConfig() Config {
	return Config{Enabled: false, ServiceName: "logstream", SampleRate: 1.0}
}

// Manager owns the tracer provider's lifecycle.
type Manager struct {
	config   Config
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewManager builds a Manager. When config.Enabled is false, GetTracer
// returns a no-op tracer and every other method is a no-op.
func NewManager(config Config, logger *logrus.Logger) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, tracer: otel.Tracer("noop")}, nil
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(config.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(newLogrusExporter(logger)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)
	otel.SetTracerProvider(provider)

	return &Manager{
		config:   config,
		provider: provider,
		tracer:   otel.Tracer(config.ServiceName),
	}, nil
}

// GetTracer returns the tracer spans should be started from.
func (m *Manager) GetTracer() oteltrace.Tracer {
	return m.tracer
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// logrusExporter implements sdktrace.SpanExporter by writing each finished
// span as one structured log line instead of shipping it over the network.
type logrusExporter struct {
	logger *logrus.Logger
}

func newLogrusExporter(logger *logrus.Logger) *logrusExporter {
	return &logrusExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *logrusExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := logrus.Fields{
			"trace_id":   span.SpanContext().TraceID().String(),
			"span_id":    span.SpanContext().SpanID().String(),
			"span_name":  span.Name(),
			"duration_ms": span.EndTime().Sub(span.StartTime()) / time.Millisecond,
		}
		for _, attr := range span.Attributes() {
			fields[string(attr.Key)] = attr.Value.Emit()
		}
		e.logger.WithFields(fields).Debug("span finished")
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *logrusExporter) Shutdown(ctx context.Context) error {
	return nil
}
