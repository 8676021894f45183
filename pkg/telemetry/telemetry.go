// Package telemetry wires up OpenTelemetry tracing and metrics for the
// storage and indexing core, with a Prometheus exporter backing the
// metrics side. A disabled or nil config yields no-op providers so core
// packages can always call through a Telemetry without a nil check.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const shutdownTimeout = 5 * time.Second

// Config selects whether telemetry runs at all and, if so, how it's
// exported.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName tags every trace and metric.
	ServiceName string `yaml:"service_name"`

	// PrometheusPort exposes /metrics over HTTP when positive. Zero
	// disables the listener; callers that just want in-process counters
	// can leave it unset.
	PrometheusPort int `yaml:"prometheus_port"`

	// TraceSampleRatio is the fraction of traces kept, in (0, 1]. Out of
	// range or zero means "keep everything".
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Telemetry bundles the providers and the tracer/meter handles the rest
// of the module actually calls. TracerProvider/MeterProvider are nil
// under a disabled or Noop Telemetry.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
}

// ShutdownFunc flushes and tears down whatever providers New started.
type ShutdownFunc func(ctx context.Context) error

func noopTelemetry() *Telemetry {
	return &Telemetry{
		Tracer: nooptrace.NewTracerProvider().Tracer(""),
		Meter:  noop.NewMeterProvider().Meter(""),
	}
}

func noopShutdown(context.Context) error { return nil }

// Noop returns a Telemetry whose Tracer/Meter discard everything, for
// callers (mainly core-package tests) that don't want to stand up the
// SDK at all.
func Noop() *Telemetry { return noopTelemetry() }

// New builds the tracer and meter providers described by config. A
// disabled config short-circuits to Noop.
func New(config Config) (*Telemetry, ShutdownFunc, error) {
	if !config.Enabled {
		return noopTelemetry(), noopShutdown, nil
	}

	res, err := buildResource(config.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	meterProvider, err := buildMeterProvider(res)
	if err != nil {
		return nil, nil, err
	}
	if config.PrometheusPort > 0 {
		go serveMetrics(config.PrometheusPort)
	}

	tracerProvider := buildTracerProvider(res, clampSampleRatio(config.TraceSampleRatio))

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	tel := &Telemetry{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Tracer:         tracerProvider.Tracer(config.ServiceName),
		Meter:          meterProvider.Meter(config.ServiceName),
	}
	return tel, shutdownBoth(tracerProvider, meterProvider), nil
}

func buildResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("merging otel resource: %w", err)
	}
	return res, nil
}

func buildMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	), nil
}

func buildTracerProvider(res *resource.Resource, sampleRatio float64) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRatio)),
	)
}

func clampSampleRatio(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		return 1.0
	}
	return ratio
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		otel.Handle(fmt.Errorf("prometheus http server failed: %w", err))
	}
}

func shutdownBoth(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down meter provider: %w", err)
		}
		return nil
	}
}
