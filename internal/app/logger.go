package app

import (
	"io"
	"log/slog"
)

// newLogger creates a slog.Logger writing to outW. It does not set the
// global logger, so every App gets an isolated instance. Unknown levels fall
// back to info.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler).With("app", "tkalgrid")
}
