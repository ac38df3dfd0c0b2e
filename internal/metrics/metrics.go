// Package metrics records preview cache activity as OpenTelemetry counters.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/starford/linkshot"

// Recorder holds the counters. The zero value is not usable; build one with
// New or Noop.
type Recorder struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	reveals       metric.Int64Counter
	captures      metric.Int64Counter
	captureErrors metric.Int64Counter
	removed       metric.Int64Counter
}

// New creates a Recorder on the given meter.
func New(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.hits, "linkshot.preview.hits", "Link nodes initialized from a cached preview"},
		{&r.misses, "linkshot.preview.misses", "Link nodes that fell back to a live load"},
		{&r.reveals, "linkshot.preview.reveals", "Cached previews discarded for a live load"},
		{&r.captures, "linkshot.capture.total", "Artifact captures written"},
		{&r.captureErrors, "linkshot.capture.errors", "Artifact captures that failed"},
		{&r.removed, "linkshot.reconcile.removed", "Orphaned artifact pairs removed"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("metrics: %s: %w", c.name, err)
		}
		*c.dst = ctr
	}
	return r, nil
}

// Noop returns a Recorder that discards everything.
func Noop() *Recorder {
	r, _ := New(noop.NewMeterProvider().Meter(meterName))
	return r
}

func (r *Recorder) CacheHit(ctx context.Context) { r.hits.Add(ctx, 1) }
func (r *Recorder) CacheMiss(ctx context.Context) { r.misses.Add(ctx, 1) }
func (r *Recorder) Reveal(ctx context.Context) { r.reveals.Add(ctx, 1) }
func (r *Recorder) Captured(ctx context.Context) { r.captures.Add(ctx, 1) }
func (r *Recorder) CaptureFailed(ctx context.Context) { r.captureErrors.Add(ctx, 1) }

// Removed adds n reconciled entries.
func (r *Recorder) Removed(ctx context.Context, n int) {
	if n > 0 {
		r.removed.Add(ctx, int64(n))
	}
}

// Provider bundles a meter provider with the HTTP handler that exposes it.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// NewPrometheus builds a meter provider exported through a private
// Prometheus registry.
func NewPrometheus() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("metrics: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Provider{
		MeterProvider: mp,
		Handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Recorder creates a Recorder on the provider's meter.
func (p *Provider) Recorder() (*Recorder, error) {
	return New(p.MeterProvider.Meter(meterName))
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}
