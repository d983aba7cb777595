package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/docservice/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zaptest"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "docs-test",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.Equal(t, cfg, mp.GetConfig())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestCounterAndHistogram_NoopMeter(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, nil)
	require.NoError(t, err)
	meter := mp.Meter("test")

	counter, err := telemetry.NewCounter(meter, "test_counter", "Test counter", "1")
	require.NoError(t, err)
	counter.Add(ctx, 5, attribute.String("method", "GET"))
	counter.Inc(ctx)

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:       "test_histogram",
		Unit:       "s",
		Boundaries: telemetry.HTTPDurationBuckets,
	})
	require.NoError(t, err)
	histogram.Record(ctx, 0.2)
	histogram.RecordDuration(ctx, 150*time.Millisecond, telemetry.AttrBackend.String("REMOTE_FILE"))
}

func TestBuckets_Sorted(t *testing.T) {
	for _, buckets := range [][]float64{telemetry.HTTPDurationBuckets, telemetry.StorageDurationBuckets} {
		for i := 1; i < len(buckets); i++ {
			assert.Less(t, buckets[i-1], buckets[i])
		}
	}
}
