package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig controls metric export.
type ProviderConfig struct {
	Enabled     bool
	ServiceName string
	Interval    time.Duration
	// File receives JSON metric dumps. Empty means stderr, since stdout
	// carries the MCP stdio protocol.
	File string
	// Writer overrides File when set.
	Writer io.Writer
}

// Provider owns the SDK meter provider installed as the global one.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	file          *os.File
}

// NewProvider installs a meter provider exporting every Interval. A disabled
// config returns a Provider that leaves the global no-op provider in place.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		return p, nil
	}

	w := cfg.Writer
	if w == nil {
		if cfg.File != "" {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open metrics file: %w", err)
			}
			p.file = f
			w = f
		} else {
			w = os.Stderr
		}
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool {
	return p.meterProvider != nil
}

// Shutdown exports what is left and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	err := p.meterProvider.Shutdown(ctx)
	if p.file != nil {
		if cerr := p.file.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("metric shutdown failed: %w", err)
	}
	return nil
}
