// Package logger builds the structured JSON logger used by the CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// L is the global logger, set by Init.
var L *slog.Logger = slog.Default()

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info, with ok false.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// New returns a JSON logger writing to w with RFC3339 timestamps.
func New(levelStr string, w io.Writer) *slog.Logger {
	level, _ := ParseLevel(levelStr)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Init installs a stderr logger as L and as the slog default.
// Call it once at startup, after loading config.
func Init(levelStr string) *slog.Logger {
	L = New(levelStr, os.Stderr)
	slog.SetDefault(L)
	if _, ok := ParseLevel(levelStr); !ok {
		L.Warn("invalid log level, defaulting to info", "configured_level", levelStr)
	}
	return L
}
