package logger

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level       string
	ServiceName string
	Development bool
}

// Logger wraps zap.Logger with trace-aware helpers
type Logger struct {
	zl *zap.Logger
}

var (
	global *Logger
	mu     sync.RWMutex
)

// Init builds the process logger. Calling it again replaces the logger.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	zl, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	if cfg.ServiceName != "" {
		zl = zl.With(zap.String("service", cfg.ServiceName))
	}

	mu.Lock()
	global = &Logger{zl: zl}
	mu.Unlock()
	return nil
}

// Get returns the process logger, falling back to a no-op logger before Init
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return Nop()
	}
	return global
}

// Sync flushes buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		_ = global.zl.Sync()
	}
}

// New wraps an existing zap logger
func New(zl *zap.Logger) *Logger {
	return &Logger{zl: zl.WithOptions(zap.AddCallerSkip(1))}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// With returns a child logger carrying fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zl.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zl.Fatal(msg, fields...) }

// InfoContext logs at info level with the trace id of ctx attached
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Info(msg, withTrace(ctx, fields)...)
}

// WarnContext logs at warn level with the trace id of ctx attached
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Warn(msg, withTrace(ctx, fields)...)
}

// ErrorContext logs at error level with the trace id of ctx attached
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zl.Error(msg, withTrace(ctx, fields)...)
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return fields
	}
	return append(fields, zap.String("trace_id", sc.TraceID().String()))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug", "development":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
