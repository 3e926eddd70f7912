// Package logger builds the slog loggers used across the blackboard: a
// colorized charmbracelet handler for interactive CLI use, a JSON handler
// for service logs, and slog's text handler otherwise.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type options struct {
	level     slog.Level
	pretty    bool
	json      bool
	source    bool
	component string
	writers   []io.Writer
}

// New creates a *slog.Logger configured by the given options. With no
// options it writes Info and above as text to stdout.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(o)
	}

	var w io.Writer
	switch len(o.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = o.writers[0]
	default:
		w = io.MultiWriter(o.writers...)
	}

	var handler slog.Handler
	switch {
	case o.json:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     o.level,
			AddSource: o.source,
		})
	case o.pretty:
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(o.level),
			ReportTimestamp: true,
			ReportCaller:    o.source,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     o.level,
			AddSource: o.source,
		})
	}

	l := slog.New(handler)
	if o.component != "" {
		l = l.With("component", o.component)
	}

	return l
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
