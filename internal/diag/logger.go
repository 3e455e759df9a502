// Package diag holds the logging and metrics plumbing shared by the producer,
// the consumer and the command line tools.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Format is text or json. Empty means text.
	Format string

	// Service is added to every record as the "service" attribute when set.
	Service string

	// Output defaults to stderr. The producer speaks its channel on stdout
	// when run as a subprocess, so logs must never go there.
	Output io.Writer
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ``, `info`:
		return slog.LevelInfo, nil
	case `debug`:
		return slog.LevelDebug, nil
	case `warn`, `warning`:
		return slog.LevelWarn, nil
	case `error`:
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf(`unknown log level %q`, s)
}

// NewLogger builds a slog.Logger from cfg.
func NewLogger(cfg LogConfig) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case ``, `text`:
		h = slog.NewTextHandler(out, opts)
	case `json`:
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf(`unknown log format %q`, cfg.Format)
	}

	logger := slog.New(h)
	if cfg.Service != `` {
		logger = logger.With(slog.String(`service`, cfg.Service))
	}
	return logger, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
