package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer and the meter.
const instrumentationName = "descinject"

// Providers is what every entry point needs to report on its hooks.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes telemetry and closes the log output. Call it once the
	// build, scan or MCP session is over; later calls are no-ops.
	Shutdown func(ctx context.Context) error
}

// Init sets up logging and, when cfg.OTLPEndpoint is set, OTLP export of
// hook spans and metrics. Without an endpoint the tracer and meter are
// no-ops and nothing is installed globally.
func Init(ctx context.Context, cfg Config) (Providers, error) {
	logger, logOut := NewLogger(cfg)

	if cfg.OTLPEndpoint == "" {
		return Providers{
			Tracer:   nooptrace.NewTracerProvider().Tracer(instrumentationName),
			Meter:    noopmetric.NewMeterProvider().Meter(instrumentationName),
			Logger:   logger,
			Shutdown: shutdownChain(cfg, plainCloser{logOut}),
		}, nil
	}

	tp, mp, err := exportingProviders(ctx, cfg)
	if err != nil {
		return Providers{}, errors.Join(err, logOut.Close())
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.DebugContext(ctx, "telemetry export enabled", "endpoint", cfg.OTLPEndpoint, "mode", cfg.Mode)

	return Providers{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    mp.Meter(instrumentationName),
		Logger:   logger,
		Shutdown: shutdownChain(cfg, providerCloser{tp.Shutdown}, providerCloser{mp.Shutdown}, plainCloser{logOut}),
	}, nil
}

func exportingProviders(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, nil, fmt.Errorf("build otel resource: %w", err)
	}

	spanExporter, err := otlptracegrpc.New(ctx, traceExporterOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricExporterOptions(cfg)...)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), spanExporter.Shutdown(ctx))
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithBatcher(spanExporter), sdktrace.WithResource(res)}
	if sampler := samplerFor(cfg); sampler != nil {
		tpOpts = append(tpOpts, sdktrace.WithSampler(sampler))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	return sdktrace.NewTracerProvider(tpOpts...), mp, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	kv := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		kv = append(kv, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		kv = append(kv, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		kv = append(kv, attribute.String("descinject.mode", string(cfg.Mode)))
	}

	return kv
}

func traceExporterOptions(cfg Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
	}

	return opts
}

func metricExporterOptions(cfg Config) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}

	return opts
}

// samplerFor returns nil when the SDK should read OTEL_TRACES_SAMPLER.
func samplerFor(cfg Config) sdktrace.Sampler {
	switch {
	case cfg.DebugTrace:
		return sdktrace.AlwaysSample()
	case cfg.SampleRatio > 0:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	default:
		return nil
	}
}

type contextCloser interface {
	closeContext(ctx context.Context) error
}

type providerCloser struct {
	shutdown func(context.Context) error
}

func (p providerCloser) closeContext(ctx context.Context) error { return p.shutdown(ctx) }

type plainCloser struct{ io.Closer }

func (p plainCloser) closeContext(context.Context) error { return p.Close() }

// shutdownChain closes every part in order under the configured timeout.
// Only the first call does any work.
func shutdownChain(cfg Config, parts ...contextCloser) func(context.Context) error {
	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	var once sync.Once

	return func(ctx context.Context) error {
		var err error

		once.Do(func() {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			errs := make([]error, 0, len(parts))
			for _, part := range parts {
				errs = append(errs, part.closeContext(ctx))
			}

			err = errors.Join(errs...)
		})

		return err
	}
}

// ParseOTLPHeaders reads OTEL_EXPORTER_OTLP_HEADERS style "k=v,k=v" input.
// Pairs without "=" are dropped; nil means no usable header.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
