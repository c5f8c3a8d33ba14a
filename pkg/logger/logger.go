// Package logger is the zap-backed structured logger shared by the API and
// the worker. The package-level helpers pick the logger out of ctx and tag
// each line with the request and actor found there.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "orvit/internal/core/context"
)

// Logger is a sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

type Config struct {
	Level       string // debug | info | warn | error; unknown values mean info
	Development bool
	// Service is attached to every line when set.
	Service string
}

// New builds a logger: console encoding in development, JSON otherwise.
func New(cfg Config) (*Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	if cfg.Service != "" {
		zcfg.InitialFields = map[string]any{"service": cfg.Service}
	}

	z, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return FromZap(z), nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z.Sugar()}
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// Default is the process-wide production logger used when ctx carries none.
func Default() *Logger {
	fallbackOnce.Do(func() {
		l, err := New(Config{Level: "info"})
		if err != nil {
			l = Nop()
		}
		fallback = l
	})
	return fallback
}

func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// WithContext tags the logger with the trace and actor stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

func contextFields(ctx context.Context) []any {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "request_id", t.RequestID, "trace_id", t.TraceID)
	}
	if a := appctx.GetActor(ctx); a != nil {
		fields = append(fields, "company_id", a.CompanyID, "user_id", a.UserID)
	}
	return fields
}

// WithComponent names the subsystem writing the line.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

type ctxKey struct{}

func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or Default, tagged with
// ctx's trace and actor.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Debugw(msg, kv...) }

func Info(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Infow(msg, kv...) }

func Warn(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Warnw(msg, kv...) }

func Error(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Errorw(msg, kv...) }
