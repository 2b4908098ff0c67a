// Package metrics owns the OpenTelemetry meter provider of the service. The
// provider is read on demand through a ManualReader, so counters can be served
// over HTTP and logged at shutdown without an exporter.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ReasonKey tells apart the paths that increment the same counter.
const ReasonKey = attribute.Key("reason")

type Registry struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func NewRegistry() *Registry {
	reader := sdkmetric.NewManualReader()
	return &Registry{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

func (r *Registry) Meter(name string) metric.Meter {
	return r.provider.Meter(name)
}

// Snapshot maps a counter name to its totals per reason. Counters that were
// never incremented are absent.
type Snapshot map[string]map[string]int64

func (s Snapshot) Count(name, reason string) int64 {
	return s[name][reason]
}

func (s Snapshot) Total(name string) int64 {
	var total int64
	for _, v := range s[name] {
		total += v
	}
	return total
}

// Snapshot collects the current value of every int64 counter.
func (r *Registry) Snapshot(ctx context.Context) (Snapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	snapshot := make(Snapshot)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			counts, ok := snapshot[m.Name]
			if !ok {
				counts = make(map[string]int64)
				snapshot[m.Name] = counts
			}
			for _, dp := range sum.DataPoints {
				reason, _ := dp.Attributes.Value(ReasonKey)
				counts[reason.AsString()] += dp.Value
			}
		}
	}

	return snapshot, nil
}

func (r *Registry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
