// Package log provides the shared logging setup for the tripwise service.
//
// Loggers are plain *slog.Logger values injected through constructors; there
// is no package-level logger. Components derive scoped loggers with
// logger.With("component", ...).
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so dependents do not import log/slog just for
// the type name.
type Logger = *slog.Logger

// Config holds logger construction options.
type Config struct {
	// Level is the minimum level that will be emitted. Default: Info.
	Level slog.Level

	// JSON switches output to JSON records. Default: text.
	JSON bool

	// AddSource annotates records with file:line of the call site.
	AddSource bool
}

// New builds a logger writing to stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter builds a logger writing to w. Tests use this with a buffer
// to assert on emitted records.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test use only; wiring it
// into production components makes degraded-mode conditions invisible.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
