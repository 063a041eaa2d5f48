package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestLogger_WithContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, TenantIDKey, int64(7))
	log.WithContext(ctx).BatchTransition("Forge", 3, "Applied", "InProgress")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "batch_transition" {
		t.Errorf("Expected msg batch_transition, got %v", entry["msg"])
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["tenant_id"] != float64(7) {
		t.Errorf("Expected tenant_id 7, got %v", entry["tenant_id"])
	}
	if entry["to"] != "InProgress" {
		t.Errorf("Expected to InProgress, got %v", entry["to"])
	}
}

func TestLogger_DevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("development", &buf).Debug("visible")

	if !bytes.Contains(buf.Bytes(), []byte("msg=visible")) {
		t.Errorf("Expected debug text output, got %q", buf.String())
	}
}
