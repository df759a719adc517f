// Package log builds the slog loggers that every finsight component
// receives through its constructor. There is no package-global logger;
// a component that wants context attaches it with logger.With().
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so call sites keep the full slog API
// without an interface wrapper in between.
type Logger = *slog.Logger

// Config selects handler, level and source annotation.
type Config struct {
	Level     slog.Level // minimum level, defaults to Info
	JSON      bool       // JSON handler instead of text
	AddSource bool       // annotate records with file:line
}

// New builds a logger writing to stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter builds a logger writing to w, which tests use to
// capture output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// NewNop builds a logger that discards everything. For tests.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
