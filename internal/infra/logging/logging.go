// Package logging builds the *slog.Logger handed to every component.
// Loggers are injected; nothing in the module logs through a global.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	level   slog.Level
	json    bool
	pretty  bool
	source  bool
	writers []io.Writer
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithJSON enables slog's JSON handler for service logs.
func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

// WithPretty enables the charmbracelet/log handler for colorized CLI output.
// JSON wins when both are set.
func WithPretty(pretty bool) Option {
	return func(o *options) { o.pretty = pretty }
}

// WithSource includes file:line in log output.
func WithSource(source bool) Option {
	return func(o *options) { o.source = source }
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writers = []io.Writer{w} }
}

// WithWriters fans output out to several writers.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) { o.writers = w }
}

// New returns a logger configured by opts. Without options it writes
// text records at Info level to stderr.
func New(opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}

	var w io.Writer = os.Stderr
	switch len(o.writers) {
	case 0:
	case 1:
		w = o.writers[0]
	default:
		w = io.MultiWriter(o.writers...)
	}

	switch {
	case o.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.level, AddSource: o.source}))
	case o.pretty:
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(o.level),
			ReportTimestamp: true,
			ReportCaller:    o.source,
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level, AddSource: o.source}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a config value (debug, info, warn, error) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
