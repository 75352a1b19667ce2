// Package logging wraps go.uber.org/zap behind a small interface so every
// component in the pipeline receives its logger via constructor injection
// instead of reaching for a package-global.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used throughout the pipeline.
type Logger interface {
	Info(msg string, fields ...zapcore.Field)
	Warn(msg string, fields ...zapcore.Field)
	Error(msg string, fields ...zapcore.Field)
	Debug(msg string, fields ...zapcore.Field)
	With(fields ...zapcore.Field) Logger
	Sync() error
}

// Config controls how the root Logger is built.
type Config struct {
	// Environment is "production" or "development". Production uses a
	// JSON encoder; development uses zap's console encoder.
	Environment string
	// LogLevel is one of debug/info/warn/error/dpanic/panic/fatal.
	LogLevel string
	// ServiceName is attached to every log line as the "service" field.
	ServiceName string
}

// DefaultConfig returns sane development defaults.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		ServiceName: "migrated",
	}
}

type logger struct {
	zap *zap.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) (Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.Environment, "production") {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
	if cfg.ServiceName != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": cfg.ServiceName}
	}

	z, err := zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return &logger{zap: z}, nil
}

// NewDefault builds a Logger with DefaultConfig.
func NewDefault() (Logger, error) {
	return New(DefaultConfig())
}

func (l *logger) Info(msg string, fields ...zapcore.Field)  { l.zap.Info(msg, fields...) }
func (l *logger) Warn(msg string, fields ...zapcore.Field)  { l.zap.Warn(msg, fields...) }
func (l *logger) Error(msg string, fields ...zapcore.Field) { l.zap.Error(msg, fields...) }
func (l *logger) Debug(msg string, fields ...zapcore.Field) { l.zap.Debug(msg, fields...) }

func (l *logger) With(fields ...zapcore.Field) Logger {
	return &logger{zap: l.zap.With(fields...)}
}

func (l *logger) Sync() error { return l.zap.Sync() }

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
