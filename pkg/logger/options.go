package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*options)

// WithDebug lowers the level to Debug when true, Info otherwise.
func WithDebug(debug bool) Option {
	return func(o *options) {
		if debug {
			o.level = slog.LevelDebug
		} else {
			o.level = slog.LevelInfo
		}
	}
}

// WithLevel sets an explicit minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithPretty switches to the charmbracelet/log handler for colorized,
// human-friendly CLI output.
func WithPretty(pretty bool) Option {
	return func(o *options) {
		o.pretty = pretty
	}
}

// WithJSON switches to slog's JSON handler. It takes precedence over
// WithPretty.
func WithJSON(json bool) Option {
	return func(o *options) {
		o.json = json
	}
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writers = []io.Writer{w}
	}
}

// WithWriters fans output out to several writers.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) {
		o.writers = w
	}
}

// WithSource includes the source file and line in every record.
func WithSource(source bool) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithComponent binds a "component" attribute to every record.
func WithComponent(name string) Option {
	return func(o *options) {
		o.component = name
	}
}
