package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrEthical07/deskauth"
	otelexport "github.com/MrEthical07/deskauth/metrics/export/otel"
)

const meterName = "github.com/MrEthical07/deskauth"

// otelMetrics pushes broker metrics to an OTLP/HTTP collector.
type otelMetrics struct {
	provider *sdkmetric.MeterProvider
	exporter *otelexport.Exporter
}

func startOTelMetrics(ctx context.Context, endpoint string, interval time.Duration, broker *deskauth.Broker) (*otelMetrics, error) {
	exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	exporter, err := otelexport.NewExporter(provider.Meter(meterName), broker)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	return &otelMetrics{provider: provider, exporter: exporter}, nil
}

// Shutdown flushes the last collection and stops the reader.
func (m *otelMetrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return errors.Join(m.exporter.Close(), m.provider.Shutdown(ctx))
}
