package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestWithIntent_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	WithIntent("intent-1", "trust_signal").Warn("status update failed")

	out := buf.String()
	if !strings.Contains(out, `"intent_id":"intent-1"`) {
		t.Errorf("intent_id missing from log line: %s", out)
	}
	if !strings.Contains(out, `"intent_type":"trust_signal"`) {
		t.Errorf("intent_type missing from log line: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, slog.LevelInfo); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
