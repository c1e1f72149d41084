package logging

import "testing"

func TestNewAllLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "warning", "error", "unknown", ""}
	for _, level := range levels {
		logger := New(level)
		if logger == nil {
			t.Errorf("expected non-nil logger for level %q", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{
		"debug": true,
		"DEBUG": true,
		"warn":  true,
		"error": true,
		"info":  true,
		"junk":  true,
	}
	for level := range cases {
		// parseLevel must never panic regardless of input.
		_ = parseLevel(level)
	}
}
