package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a text logger tagged with the service name. The level comes
// from LOG_LEVEL and defaults to info.
func New(service string) *slog.Logger {
	return NewWithWriter(os.Stdout, service, parseLevel(os.Getenv("LOG_LEVEL")))
}

// NewWithWriter is New with an explicit destination and level.
func NewWithWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
