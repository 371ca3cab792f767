package logger

import (
	"log/slog"
	"os"
)

// New returns a structured logger writing JSON to stdout. The level comes
// from TAXFILE_LOG_LEVEL (debug, info, warn, error); default info.
func New() *slog.Logger {
	var level slog.Level
	switch os.Getenv("TAXFILE_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
