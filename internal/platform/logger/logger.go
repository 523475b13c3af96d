package logger

import (
	"io"
	"log/slog"
	"os"
)

type Option func(*options)

type options struct {
	level  slog.Level
	writer io.Writer
	attrs  []slog.Attr
}

// WithLevel sets the minimum level. Default Info.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithWriter redirects output, mainly for tests. Default stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithAttrs stamps attrs on every record, e.g. the service environment.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// New returns a structured JSON logger using slog.
func New(opts ...Option) *slog.Logger {
	o := options{level: slog.LevelInfo, writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	handler := slog.NewJSONHandler(o.writer, &slog.HandlerOptions{
		Level: o.level,
	})
	return slog.New(handler.WithAttrs(o.attrs))
}

// LevelFor maps an environment name to its default log level.
func LevelFor(environment string) slog.Level {
	switch environment {
	case "development", "local":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
