package telemetry

import (
	"context"

	"github.com/go-smart-notifications/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup initialises OpenTelemetry metrics for the given service.
//
// Metrics are opt-in: when OTEL_ENDPOINT is empty or OTEL_ENABLED is false,
// Setup returns a no-op shutdown function and the global meter provider is
// left untouched.
//
// The returned shutdown function flushes pending data points and should be
// deferred by the caller.
func Setup(ctx context.Context, cfg *config.Config, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.OTelEnabled || cfg.OTelEndpoint == "" {
		return noop, nil
	}

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(cfg.OTelEndpoint),
	)
	if err != nil {
		return noop, err
	}

	mp, err := NewMeterProvider(ctx, serviceName,
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTelInterval)))
	if err != nil {
		return noop, err
	}

	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// NewMeterProvider builds an SDK meter provider tagged with serviceName that
// feeds reader.
func NewMeterProvider(ctx context.Context, serviceName string, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}
