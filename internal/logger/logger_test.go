package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupToJSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupTo(&buf, "warn", "json")
	log.Info().Msg("dropped")
	log.Warn().Str("component", "worker").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["message"] != "kept" || entry["component"] != "worker" || entry["caller"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetupToUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	SetupTo(&buf, "loud", "json")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s, want info", zerolog.GlobalLevel())
	}
}

func TestSetupToPrettyWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := SetupTo(&buf, "info", "pretty")
	log.Info().Msg("hello")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("color codes written to a buffer: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q", buf.String())
	}
}
