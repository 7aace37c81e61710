package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("production", "info", &buf)
	log.Component("pipeline").WithConversation("c-1").Info("stage started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "pipeline" || entry["conversation_id"] != "c-1" {
		t.Fatalf("missing fields in %v", entry)
	}
	if entry["msg"] != "stage started" {
		t.Fatalf("unexpected msg %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("production", "warn", &buf)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be emitted, got %q", buf.String())
	}
}

func TestWithErrorAndRequest(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("production", "debug", &buf)
	log.WithError(errors.New("boom")).Error("failed")
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Fatalf("expected error field, got %q", buf.String())
	}

	buf.Reset()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	log.WithRequest(req).Info("health check")
	if !strings.Contains(buf.String(), `"req_id":"req-42"`) {
		t.Fatalf("expected request id, got %q", buf.String())
	}
	if log.WithError(nil) != log.Entry {
		t.Fatal("WithError(nil) should return the base entry")
	}
}
