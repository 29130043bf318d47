package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the service.
// Key-value pairs follow zap's sugared convention: msg, "key", value, ...
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
	Sync() error
}

type Environment string

const (
	Development Environment = "development" // debug and above, console encoder
	Production  Environment = "production"  // info and above, json encoder
)

type Config struct {
	Environment Environment
	Service     string
	// OutputPaths defaults to stdout.
	OutputPaths []string
}

type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// New builds a zap-backed Logger for the given environment.
func New(cfg Config) (*ZapLogger, error) {
	var zcfg zap.Config
	switch cfg.Environment {
	case Production:
		zcfg = zap.NewProductionConfig()
	case Development, "":
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log environment %q", cfg.Environment)
	}
	zcfg.Level = zap.NewAtomicLevelAt(levelFor(cfg.Environment))
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}

	base, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	if cfg.Service != "" {
		base = base.With(zap.String("service", cfg.Service))
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

// NewFromZap wraps an existing zap logger, mostly for tests using zaptest/observer.
func NewFromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}

func levelFor(env Environment) zapcore.Level {
	if env == Production {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func (z *ZapLogger) Debug(msg string, keyvals ...any) { z.sugar.Debugw(msg, keyvals...) }
func (z *ZapLogger) Info(msg string, keyvals ...any)  { z.sugar.Infow(msg, keyvals...) }
func (z *ZapLogger) Warn(msg string, keyvals ...any)  { z.sugar.Warnw(msg, keyvals...) }
func (z *ZapLogger) Error(msg string, keyvals ...any) { z.sugar.Errorw(msg, keyvals...) }

func (z *ZapLogger) With(keyvals ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(keyvals...)}
}

func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
