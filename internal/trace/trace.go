package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
	traceFile      *os.File
)

const serviceName = "etf-gap-trader"

// Config selects where spans go. A nil Output means stdout.
type Config struct {
	Enabled     bool
	Output      io.Writer
	SampleRatio float64
}

// LoadConfigFromEnv reads LOG_TRACING_ENABLED, LOG_TRACE_FILE and
// LOG_TRACE_SAMPLE_RATIO. The file is opened for append.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Enabled:     getEnv("LOG_TRACING_ENABLED", "false") == "true",
		SampleRatio: 1,
	}
	if v := os.Getenv("LOG_TRACE_SAMPLE_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 1 {
			return cfg, fmt.Errorf("LOG_TRACE_SAMPLE_RATIO must be within 0-1, got %q", v)
		}
		cfg.SampleRatio = r
	}
	if p := os.Getenv("LOG_TRACE_FILE"); cfg.Enabled && p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return cfg, fmt.Errorf("open trace file: %w", err)
		}
		traceFile = f
		cfg.Output = f
	}
	return cfg, nil
}

// Init configures tracing from the environment.
func Init() error {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return err
	}
	return InitWithConfig(cfg)
}

func InitWithConfig(cfg Config) error {
	enabled = cfg.Enabled
	if !enabled {
		return nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if cfg.Output != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Output))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("0.3.0"),
		),
	)
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

// Shutdown flushes pending spans and closes the trace file, if any.
func Shutdown(ctx context.Context) error {
	var err error
	if tracerProvider != nil {
		err = tracerProvider.Shutdown(ctx)
	}
	if traceFile != nil {
		if cerr := traceFile.Close(); err == nil {
			err = cerr
		}
		traceFile = nil
	}
	return err
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

// StartSymbolSpan starts a span tagged with the instrument it concerns.
func StartSymbolSpan(ctx context.Context, spanName, symbol string) (context.Context, trace.Span) {
	return StartSpan(ctx, spanName, trace.WithAttributes(attribute.String("symbol", symbol)))
}

func Enabled() bool {
	return enabled
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
