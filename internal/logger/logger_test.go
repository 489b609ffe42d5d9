package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return entry
}

func TestJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info("hello")

	entry := decodeLine(t, &buf)
	if entry["message"] != "hello" {
		t.Errorf("expected message 'hello', got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", entry["level"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp key")
	}
}

func TestWarnLevelRename(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)

	log.Warn("careful")

	entry := decodeLine(t, &buf)
	if entry["level"] != "warning" {
		t.Errorf("expected level 'warning', got %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed at warn level, got %q", buf.String())
	}

	log.Error("visible")
	if buf.Len() == 0 {
		t.Error("expected error to be logged at warn level")
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.WithModule("webhook").WithField("sender_id", "123").Info("event")

	entry := decodeLine(t, &buf)
	if entry["module"] != "webhook" {
		t.Errorf("expected module 'webhook', got %v", entry["module"])
	}
	if entry["sender_id"] != "123" {
		t.Errorf("expected sender_id '123', got %v", entry["sender_id"])
	}
}

func TestFormattedHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)

	log.Infof("count=%d", 7)

	entry := decodeLine(t, &buf)
	if entry["message"] != "count=7" {
		t.Errorf("expected formatted message, got %v", entry["message"])
	}
}
