// Package telemetry sets up the OpenTelemetry meter provider that backs the
// dispatcher instruments and exposes them in Prometheus format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope of the task engine.
const MeterName = "github.com/phrazzld/coursework-jobs"

// Provider bundles the meter provider with its /metrics handler.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler
}

// InitMetrics creates a meter provider with a Prometheus exporter on a
// dedicated registry and installs it as the global provider.
func InitMetrics() (*Provider, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	return &Provider{
		meterProvider: mp,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns the engine's meter.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(MeterName)
}

// Handler serves the collected metrics.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
