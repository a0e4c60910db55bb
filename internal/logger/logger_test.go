package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")
	log, closer, err := New(Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info().Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "json", zerolog.InfoLevel)

	log.Debug().Msg("hidden")
	log.Warn().Str("asset", "BTC").Msg("duplicate price timestamp")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line above debug level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["level"] != "warn" || entry["asset"] != "BTC" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNewWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "console", zerolog.DebugLevel)
	log.Info().Msg("prices loaded")
	if !strings.Contains(buf.String(), "prices loaded") {
		t.Errorf("expected message in console output, got %q", buf.String())
	}
}
