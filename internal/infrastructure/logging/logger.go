package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "graymacro"

// Logger is a slog.Logger carrying the service and version attributes.
//
// It satisfies the small Logger interfaces declared by the macro, engine,
// mqtt and bridge packages, so those packages never import slog setup.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New writes to stdout, or stderr when cfg.Output is "stderr". Format
// "text" selects slog's text handler; anything else is JSON.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(w, cfg, version)
}

// NewWithWriter is New with an explicit destination. The CLI uses it to keep
// run output on stdout and logs on stderr; tests use it with a buffer.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog.New(h).With("service", ServiceName, "version", version)}
}

// parseLevel maps a config level name to slog, case-insensitively.
// Unknown names mean info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// With returns a child logger with extra attributes:
//
//	runLog := log.With("run_id", runID)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is a JSON info logger on stdout for use before config loads.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
