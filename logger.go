package auth

import (
	"io"
	"log/slog"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SlogLogger implements Logger on top of log/slog. Rich errors passed as
// values are expanded into their category, text code and metadata.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a structured logger writing to stdout.
// format is "json" (default) or "text".
func NewSlogLogger(level, format string) *SlogLogger {
	return NewSlogLoggerTo(os.Stdout, level, format)
}

// NewSlogLoggerTo is NewSlogLogger with an explicit writer.
func NewSlogLoggerTo(w io.Writer, level, format string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "pretty":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return &SlogLogger{log: slog.New(h)}
}

// FromSlog wraps an existing slog logger.
func FromSlog(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{log: l}
}

// Named returns a logger tagged with a component name.
func (s *SlogLogger) Named(name string) *SlogLogger {
	return &SlogLogger{log: s.log.With("component", name)}
}

// Slog exposes the underlying slog logger.
func (s *SlogLogger) Slog() *slog.Logger {
	return s.log
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.log.Debug(msg, expandErrors(args)...) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.log.Info(msg, expandErrors(args)...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.log.Warn(msg, expandErrors(args)...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.log.Error(msg, expandErrors(args)...) }

func expandErrors(args []any) []any {
	var extra []any
	for _, arg := range args {
		err, ok := arg.(error)
		if !ok {
			continue
		}
		for _, a := range goerrors.ToSlogAttributes(err) {
			extra = append(extra, a)
		}
	}
	if len(extra) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(extra))
	out = append(out, args...)
	return append(out, extra...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type defLogger struct{}

func (defLogger) Debug(string, ...any) {}
func (defLogger) Info(string, ...any)  {}
func (defLogger) Warn(string, ...any)  {}
func (defLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return defLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
