// Package logging wraps logrus with the fields the orchestrator attaches to
// every tick: tick id and stage.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	tickIDKey ctxKey = "tick_id"
	stageKey  ctxKey = "stage"
)

// Logger wraps logrus.Logger so call sites can use the same API the rest of
// the stack uses (WithField, WithFields, Infof, ...) without importing
// logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls level/format/output, read from the environment by
// NewFromEnv.
type Config struct {
	Level  string
	Format string
	Output string
}

// New builds a Logger from an explicit Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}
	l.SetOutput(out)

	return &Logger{Logger: l}
}

// NewFromEnv reads CO_LOG_LEVEL / CO_LOG_FORMAT / CO_LOG_OUTPUT, defaulting
// to info/json/stdout.
func NewFromEnv() *Logger {
	return New(Config{
		Level:  envOr("CO_LOG_LEVEL", "info"),
		Format: envOr("CO_LOG_FORMAT", "json"),
		Output: envOr("CO_LOG_OUTPUT", "stdout"),
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithTick returns an entry tagged with the current tick id and stage,
// pulled from a context built by the orchestrator.
func (l *Logger) WithTick(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if tickID, ok := ctx.Value(tickIDKey).(string); ok && tickID != "" {
		entry = entry.WithField("tick_id", tickID)
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		entry = entry.WithField("stage", stage)
	}
	return entry
}

// ContextWithTick attaches tick id and stage for downstream WithTick calls.
func ContextWithTick(ctx context.Context, tickID, stage string) context.Context {
	ctx = context.WithValue(ctx, tickIDKey, tickID)
	ctx = context.WithValue(ctx, stageKey, stage)
	return ctx
}
