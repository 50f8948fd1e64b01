package logging

import (
	"log/slog"
	"strings"
)

// DefaultLevel applies when no level is configured.
const DefaultLevel = slog.LevelInfo

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a config string to its slog level, ignoring case and
// surrounding whitespace. Unrecognized values report false and yield
// DefaultLevel so callers can warn and continue.
func ParseLevel(s string) (slog.Level, bool) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return DefaultLevel, false
	}
	return level, true
}
