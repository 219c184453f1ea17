package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger.  It writes text to stdout until Init
// replaces it.
var Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init rebuilds Log for the given level ("debug", "info", "warn",
// "error") and format ("json" or "text") and makes it the slog default.
func Init(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	Log = slog.New(h)
	slog.SetDefault(Log)
	return Log
}

// Discard returns a logger that drops everything.  Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
