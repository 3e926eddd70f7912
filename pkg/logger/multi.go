package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout dispatches each record to every wrapped handler that accepts its
// level. The serve command uses it to log pretty output to the terminal and
// JSON to a file at the same time.
type fanout []slog.Handler

// Multi returns a logger that writes every record through the handlers of
// all given loggers.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	handlers := make(fanout, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			handlers = append(handlers, l.Handler())
		}
	}
	return slog.New(handlers)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to each enabled handler. A failing handler does
// not stop the others; their errors are joined.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make(fanout, len(f))
	for i, h := range f {
		children[i] = h.WithAttrs(attrs)
	}
	return children
}

func (f fanout) WithGroup(name string) slog.Handler {
	children := make(fanout, len(f))
	for i, h := range f {
		children[i] = h.WithGroup(name)
	}
	return children
}
