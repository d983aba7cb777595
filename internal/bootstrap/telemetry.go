package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// Telemetry holds the OpenTelemetry providers and the instruments built on them
type Telemetry struct {
	Tracer  *telemetry.TracerProvider
	Meter   *telemetry.MeterProvider
	Logs    *telemetry.LoggerProvider
	Storage *telemetry.StorageMetrics
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg *infraconfig.Config) (*zap.Logger, error) {
	return logger.New(loggerConfig(cfg))
}

func loggerConfig(cfg *infraconfig.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

// NewTelemetry starts the trace, metric and log providers. Disabled signals
// get no-op providers.
func NewTelemetry(ctx context.Context, cfg *infraconfig.Config, log *zap.Logger) (*Telemetry, error) {
	tc := cfg.Telemetry
	t := &Telemetry{}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	t.Tracer = tp

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.Enabled && tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("meter provider: %w", err)
	}
	t.Meter = mp

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.Enabled && tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("logger provider: %w", err)
	}
	t.Logs = lp

	sm, err := telemetry.NewStorageMetrics(mp.Meter("docservice/storage"))
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("storage metrics: %w", err)
	}
	t.Storage = sm
	return t, nil
}

// Logger returns a logger that also exports to the OpenTelemetry logs
// pipeline when log export is enabled, and base otherwise.
func (t *Telemetry) Logger(cfg *infraconfig.Config, base *zap.Logger) (*zap.Logger, error) {
	if t.Logs == nil || !t.Logs.IsEnabled() {
		return base, nil
	}
	return logger.New(loggerConfig(cfg), t.Logs.ZapCore(logger.ParseLevel(cfg.Log.Level)))
}

// Shutdown flushes and stops every provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.Logs != nil {
		errs = append(errs, t.Logs.Shutdown(ctx))
	}
	if t.Meter != nil {
		errs = append(errs, t.Meter.Shutdown(ctx))
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
