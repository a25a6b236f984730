// Package telemetry configures OpenTelemetry tracing and metrics for
// the proxy.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "aisafegate"

// Provider wires the tracer and meter providers and exposes helpers.
// When disabled it hands out no-op implementations so callers never
// branch.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	scansCounter  metric.Int64Counter
	scanDuration  metric.Float64Histogram
	scanFindings  metric.Int64Counter
	shutdownTrace func(context.Context) error
	shutdownMeter func(context.Context) error
}

// NewProvider configures stdout trace and metric exporters. When
// disabled, returns a no-op provider.
func NewProvider(ctx context.Context, enabled bool, serviceName, version string, out io.Writer) (*Provider, error) {
	if !enabled {
		p := &Provider{
			Enabled: false,
			tracer:  noop.NewTracerProvider().Tracer(tracerName),
			meter:   metricnoop.NewMeterProvider().Meter(tracerName),
		}
		p.initInstruments()
		return p, nil
	}

	traceExp, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithEncoder(json.NewEncoder(out)))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:       true,
		tracer:        tp.Tracer(tracerName),
		meter:         mp.Meter(tracerName),
		shutdownTrace: tp.Shutdown,
		shutdownMeter: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func (p *Provider) initInstruments() {
	// Instrument creation errors are ignored to keep telemetry
	// best-effort.
	p.scansCounter, _ = p.meter.Int64Counter("aisafegate_scans_total")
	p.scanDuration, _ = p.meter.Float64Histogram("aisafegate_scan_duration_ms")
	p.scanFindings, _ = p.meter.Int64Counter("aisafegate_scan_findings_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return metricnoop.NewMeterProvider().Meter(tracerName)
	}
	return p.meter
}

// RecordScanMetrics emits counters and duration for one pipeline run.
// Labels carry only direction and decision, never scanned text.
func (p *Provider) RecordScanMetrics(direction, decision string, durMs float64, findings int) {
	if p == nil {
		return
	}
	labels := []attribute.KeyValue{
		attribute.String("direction", direction),
		attribute.String("decision", decision),
	}
	p.scansCounter.Add(context.Background(), 1, metric.WithAttributes(labels...))
	p.scanDuration.Record(context.Background(), durMs, metric.WithAttributes(labels...))
	if findings > 0 {
		p.scanFindings.Add(context.Background(), int64(findings), metric.WithAttributes(labels...))
	}
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTrace != nil {
		_ = p.shutdownTrace(ctx)
	}
	if p.shutdownMeter != nil {
		_ = p.shutdownMeter(ctx)
	}
}
