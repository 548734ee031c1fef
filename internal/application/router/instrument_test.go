package router

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/config"
	"github.com/go-smart-notifications/internal/pkg/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func attr(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.Emit()
}

func TestMetrics_RecordDurationAndMirrorFailures(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	engine, err := rollout.NewEngine(rollout.FlagsFromConfig(config.Rollout{
		DefaultBackend:   "postgresql",
		DualWriteEnabled: true,
		PerfMonitoring:   true,
		SlowThresholdMS:  1,
	}, t0), nil)
	require.NoError(t, err)
	a, b := memstore.New(nil), memstore.New(nil)
	a.SetDelay(3 * time.Millisecond)
	b.SetFailure(errors.New("dynamo down"))
	repo := NewSmartRepository(a, b, engine, Options{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Meter:  mp.Meter("test"),
	})

	require.NoError(t, repo.Save(ctx, note("n1", "u-a")))
	require.NoError(t, repo.Close(ctx))

	metrics := collect(t, reader)

	duration, ok := metrics["notification.store.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram recorded")
	var sawSlowPrimary, sawFailedMirror bool
	for _, dp := range duration.DataPoints {
		if attr(dp.Attributes, "op") != "save" {
			continue
		}
		switch attr(dp.Attributes, "backend") {
		case "postgresql":
			sawSlowPrimary = attr(dp.Attributes, "slow") == "true" && attr(dp.Attributes, "error") == "false"
		case "dynamodb":
			sawFailedMirror = attr(dp.Attributes, "error") == "true"
		}
	}
	assert.True(t, sawSlowPrimary)
	assert.True(t, sawFailedMirror)

	failures, ok := metrics["notification.store.mirror_failures"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "mirror failure counter recorded")
	require.Len(t, failures.DataPoints, 1)
	dp := failures.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)
	assert.Equal(t, "save", attr(dp.Attributes, "op"))
	assert.Equal(t, "dynamodb", attr(dp.Attributes, "backend"))
}

func TestMetrics_NothingRecordedWithMonitoringOff(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	engine, err := rollout.NewEngine(rollout.FlagsFromConfig(config.Rollout{DefaultBackend: "postgresql"}, t0), nil)
	require.NoError(t, err)
	repo := NewSmartRepository(memstore.New(nil), memstore.New(nil), engine, Options{Meter: mp.Meter("test")})

	require.NoError(t, repo.Save(ctx, note("n1", "u-a")))
	require.NoError(t, repo.Close(ctx))

	_, ok := collect(t, reader)["notification.store.duration"]
	assert.False(t, ok)
}
