package jsandy

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jsandy/jsandy/pkg/middleware"
	"github.com/jsandy/jsandy/pkg/tty"
)

// LogLevel represents the severity of a log line.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the logging interface every jsandy collaborator depends on.
// Implementations may be swapped in via RouterConfig.Log.
type Logger interface {
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	GetLevel() LogLevel
	SetLevel(level LogLevel)
}

// DefaultLogger is the zap-backed implementation of Logger. It mirrors
// teacher's hand-rolled logger's shape (level gate, WithFields/WithContext
// immutability, request-ID enrichment) but defers formatting and I/O to
// zap, with colorized console output when stdout is a real TTY.
type DefaultLogger struct {
	level  LogLevel
	fields map[string]interface{}
	ctx    context.Context
	base   *zap.Logger
}

// NewDefaultLogger creates a zap-backed Logger at the given level. Console
// encoding is colorized only when stdout is attached to a terminal.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if tty.IsTTY(0) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)

	return &DefaultLogger{
		level:  level,
		fields: make(map[string]interface{}),
		ctx:    context.Background(),
		base:   zap.New(core),
	}
}

func toZapFields(fields map[string]interface{}, pairs []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+len(pairs)/2)
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, pairs[i+1]))
	}
	return out
}

func (l *DefaultLogger) log(level LogLevel, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	zfields := toZapFields(l.fields, fields)
	if l.ctx != nil {
		if reqID := middleware.GetReqID(l.ctx); reqID != "" {
			zfields = append(zfields, zap.String("request_id", reqID))
		}
	}

	switch level {
	case DebugLevel:
		l.base.Debug(msg, zfields...)
	case InfoLevel:
		l.base.Info(msg, zfields...)
	case WarnLevel:
		l.base.Warn(msg, zfields...)
	case ErrorLevel:
		l.base.Error(msg, zfields...)
	}
}

func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &DefaultLogger{level: l.level, fields: merged, ctx: l.ctx, base: l.base}
}

func (l *DefaultLogger) WithContext(ctx context.Context) Logger {
	return &DefaultLogger{level: l.level, fields: l.fields, ctx: ctx, base: l.base}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) { l.log(DebugLevel, msg, fields...) }
func (l *DefaultLogger) Info(msg string, fields ...interface{})  { l.log(InfoLevel, msg, fields...) }
func (l *DefaultLogger) Warn(msg string, fields ...interface{})  { l.log(WarnLevel, msg, fields...) }
func (l *DefaultLogger) Error(msg string, fields ...interface{}) { l.log(ErrorLevel, msg, fields...) }
func (l *DefaultLogger) GetLevel() LogLevel                      { return l.level }
func (l *DefaultLogger) SetLevel(level LogLevel)                 { l.level = level }
