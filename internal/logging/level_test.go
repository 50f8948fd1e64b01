package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"ERROR", slog.LevelError, true},
		{"Warn", slog.LevelWarn, true},
		{"  info  ", slog.LevelInfo, true},
		{"", DefaultLevel, false},
		{"trace", DefaultLevel, false},
		{"warning", DefaultLevel, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevel(tt.in)
		if ok != tt.ok || level != tt.level {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, level, ok, tt.level, tt.ok)
		}
	}
}
