package metrics_test

import (
	"context"
	"screenshot/pkg/metrics"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_ExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := metrics.Setup(reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := otel.Meter("metrics_test").Int64Counter("test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "test_events_total" {
			found = true
			require.InDelta(t, 3, f.GetMetric()[0].GetCounter().GetValue(), 0.001)
		}
	}
	require.True(t, found, "expected test_events_total to be exported")
}

func TestDefaultBuckets_Sorted(t *testing.T) {
	for i := 1; i < len(metrics.DefaultBuckets); i++ {
		require.Less(t, metrics.DefaultBuckets[i-1], metrics.DefaultBuckets[i])
	}
}
