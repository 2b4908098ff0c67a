package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func TestRegistry_Snapshot(t *testing.T) {
	registry := NewRegistry()
	t.Cleanup(func() { registry.Shutdown(context.Background()) })
	ctx := context.Background()

	counter, err := registry.Meter("test").Int64Counter("things")
	require.NoError(t, err)

	counter.Add(ctx, 2, metric.WithAttributes(ReasonKey.String("red")))
	counter.Add(ctx, 1, metric.WithAttributes(ReasonKey.String("blue")))
	counter.Add(ctx, 3, metric.WithAttributes(ReasonKey.String("red")))

	snapshot, err := registry.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snapshot.Count("things", "red"))
	assert.Equal(t, int64(1), snapshot.Count("things", "blue"))
	assert.Equal(t, int64(6), snapshot.Total("things"))
	assert.Zero(t, snapshot.Count("things", "green"))
	assert.Zero(t, snapshot.Total("other"))

	// totals are cumulative across collections
	counter.Add(ctx, 1, metric.WithAttributes(ReasonKey.String("blue")))
	snapshot, err = registry.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.Count("things", "blue"))
}
