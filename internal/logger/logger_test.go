package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetLevel_AppliesToChildren(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	child := log.With("cycle", "abc")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Debug should be filtered at info, got %q", buf.String())
	}

	log.SetLevel("debug")
	child.Debug("shown")

	out := buf.String()
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "cycle=abc") {
		t.Errorf("Expected child debug record after SetLevel, got %q", out)
	}
}
