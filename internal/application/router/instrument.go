package router

import (
	"context"
	"time"

	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/go-smart-notifications/internal/application/router"

type instruments struct {
	duration       metric.Float64Histogram
	mirrorFailures metric.Int64Counter
}

func newInstruments(m metric.Meter) *instruments {
	if m == nil {
		m = noop.NewMeterProvider().Meter(instrumentationName)
	}
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	duration, err := m.Float64Histogram("notification.store.duration",
		metric.WithDescription("Duration of notification backend operations."),
		metric.WithUnit("ms"))
	if err != nil {
		duration, _ = fallback.Float64Histogram("notification.store.duration")
	}
	failures, err := m.Int64Counter("notification.store.mirror_failures",
		metric.WithDescription("Best-effort secondary operations that failed or were dropped."))
	if err != nil {
		failures, _ = fallback.Int64Counter("notification.store.mirror_failures")
	}
	return &instruments{duration: duration, mirrorFailures: failures}
}

// observe runs fn against backend b and, when monitoring is enabled, records
// how long it took. The result and error of fn are returned untouched.
func observe[T any](r *SmartRepository, ctx context.Context, op string, b domain.Backend, fn func(context.Context, domain.NotificationStore) (T, error)) (T, error) {
	store := r.stores[b]
	mon := r.engine.Monitoring()
	if !mon.Enabled {
		return fn(ctx, store)
	}
	start := r.now()
	v, err := fn(ctx, store)
	r.record(ctx, op, b, r.now().Sub(start), err, mon)
	return v, err
}

func (r *SmartRepository) record(ctx context.Context, op string, b domain.Backend, d time.Duration, err error, mon rollout.Monitoring) {
	ms := float64(d) / float64(time.Millisecond)
	slow := mon.SlowThresholdMS > 0 && d >= time.Duration(mon.SlowThresholdMS)*time.Millisecond
	r.metrics.duration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("backend", string(b)),
		attribute.Bool("slow", slow),
		attribute.Bool("error", err != nil),
	))
	attrs := []any{"op", op, "backend", b, "duration_ms", ms, "slow", slow}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	if slow && mon.LogSlow {
		r.logger.Warn("slow notification store operation", attrs...)
		return
	}
	r.logger.Debug("notification store operation", attrs...)
}

func (r *SmartRepository) mirrorFailed(ctx context.Context, op string, b domain.Backend) {
	r.metrics.mirrorFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("backend", string(b)),
	))
}
