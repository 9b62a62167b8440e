package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
)

// LogsConfig holds log export configuration.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
}

// NewLogsConfig derives log export settings; export needs telemetry.enabled
// and telemetry.logs_enabled.
func NewLogsConfig(cfg infraconfig.TelemetryConfig, version string) LogsConfig {
	return LogsConfig{
		Enabled:           cfg.Enabled && cfg.LogsEnabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Insecure,
	}
}

// LoggerProviderOption customizes NewLoggerProvider
type LoggerProviderOption func(*sdkLogOptions)

type sdkLogOptions struct {
	processor sdklog.Processor
}

// WithLogProcessor replaces the OTLP batch exporter, e.g. with an in-memory
// processor in tests. The global provider is left untouched.
func WithLogProcessor(p sdklog.Processor) LoggerProviderOption {
	return func(o *sdkLogOptions) {
		o.processor = p
	}
}

// LoggerProvider exports zap entries over OTLP.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	scope    string
}

// NewLoggerProvider creates the OTLP log pipeline. A disabled config without
// a processor yields a provider whose Core discards everything.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger, opts ...LoggerProviderOption) (*LoggerProvider, error) {
	var o sdkLogOptions
	for _, opt := range opts {
		opt(&o)
	}
	lp := &LoggerProvider{scope: cfg.ServiceName}

	processor := o.processor
	if processor == nil {
		if !cfg.Enabled {
			return lp, nil
		}
		exporterOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
		}
		exporter, err := otlploggrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
		}
		processor = sdklog.NewBatchProcessor(exporter)
		logger.Info("OTLP log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	lp.provider = sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(processor))
	if o.processor == nil {
		global.SetLoggerProvider(lp.provider)
	}
	return lp, nil
}

// IsEnabled reports whether logs are exported
func (lp *LoggerProvider) IsEnabled() bool {
	return lp.provider != nil
}

// Core returns a zap core that forwards entries at or above level with
// credential fields masked.
func (lp *LoggerProvider) Core(level zapcore.Level) zapcore.Core {
	if !lp.IsEnabled() {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(lp.scope, otelzap.WithLoggerProvider(lp.provider))
	return &exportCore{Core: core, minLevel: level}
}

// Bridge tees logger onto the OTLP pipeline. The logger is returned
// unchanged when export is disabled.
func (lp *LoggerProvider) Bridge(logger *zap.Logger, level zapcore.Level) *zap.Logger {
	if !lp.IsEnabled() {
		return logger
	}
	otelCore := lp.Core(level)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, otelCore)
	}))
}

// Shutdown flushes pending records
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := lp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	return nil
}

const redacted = "[REDACTED]"

var sensitiveKeyParts = []string{"password", "secret", "token", "cookie", "authorization", "credential"}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !isSensitiveKey(f.Key) {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fields
	}
	return out
}

// exportCore filters by level and masks credential-looking fields before
// entries leave the process.
type exportCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *exportCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *exportCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *exportCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, redactFields(fields))
}

func (c *exportCore) With(fields []zapcore.Field) zapcore.Core {
	return &exportCore{Core: c.Core.With(redactFields(fields)), minLevel: c.minLevel}
}
