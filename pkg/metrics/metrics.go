// Package metrics wires OpenTelemetry instruments to the Prometheus registry
// that the HTTP server exposes.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics. Captures routinely take
// several seconds, so the upper end reaches past the navigation timeout.
var DefaultBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60} //nolint: gochecknoglobals

// Setup installs a MeterProvider backed by the Prometheus exporter as the
// global OpenTelemetry provider. Instruments created from otel.Meter before
// Setup is called are transparently bound to it.
func Setup(registerer prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return mp, nil
}
