// Package tracing wires OpenTelemetry for the API and the client. Spans are
// exported over OTLP/gRPC when enabled; W3C trace context is always
// propagated so a CLI run and the API requests it makes share one trace.
package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const instrumentationName = "github.com/osvaldoandrade/gaitkeepr"

type Config struct {
	Enabled     bool
	ServiceName string
	Environment string

	OTLPEndpoint string
	OTLPInsecure bool

	SampleRatio float64
}

var propagator = propagation.TraceContext{}

// Setup installs the global tracer provider. The returned function flushes
// and stops the exporter; it is safe to call when tracing is disabled.
// Exporter failures disable tracing instead of failing startup.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagator)
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	cfg = withEnvDefaults(cfg)
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		logger.Warn("otel exporter init failed; tracing disabled", "err", err)
		return noop, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(cfg, logger)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName, "sampleRatio", cfg.SampleRatio)
	return tp.Shutdown, nil
}

// withEnvDefaults fills unset fields from the standard OTEL_* variables.
func withEnvDefaults(cfg Config) Config {
	cfg.ServiceName = firstSet(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "gaitkeepr")
	cfg.OTLPEndpoint = sanitizeEndpoint(firstSet(cfg.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317"))
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		cfg.OTLPInsecure = parseBool(v)
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}
	return cfg
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func newResource(cfg Config, logger *slog.Logger) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(env))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		logger.Warn("otel resource init failed; using default", "err", err)
		return resource.Default()
	}
	return res
}

// Tracer returns the tracer used for spans created outside the HTTP layer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start opens an internal span named name carrying attrs.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed. It returns err unchanged.
func Fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// InjectHeaders writes traceparent/tracestate for the span in ctx into h.
// Baggage is never forwarded to the API.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeaders returns ctx with the remote parent carried by h, if any.
func ExtractHeaders(ctx context.Context, h http.Header) context.Context {
	if h == nil {
		return ctx
	}
	return propagator.Extract(ctx, propagation.HeaderCarrier(h))
}

// sanitizeEndpoint turns an OTLP URL into the host:port the gRPC exporter
// expects.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}
