package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// L is the process-wide logger. Components log key/value pairs through it.
var L = newJSON(os.Stdout)

func newJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	levelVar.Set(ParseLevel(lvl))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

// SetOutput redirects L. The MCP binary owns stdout for the protocol, so it logs to stderr.
func SetOutput(w io.Writer) {
	L = newJSON(w)
}
