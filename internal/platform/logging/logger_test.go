package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig("dispatch-api")
	cfg.Output = &buf
	New(cfg).Info("hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if line["service"] != "dispatch-api" || line["k"] != "v" || line["msg"] != "hello" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", ServiceName: "x", Output: &buf})
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level: %s", buf.String())
	}
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unexpected level parsing")
	}
}

func TestFromContext(t *testing.T) {
	fallback := slog.Default()
	if FromContext(context.Background(), fallback) != fallback {
		t.Error("expected fallback logger")
	}
	scoped := fallback.With("request_id", "r1")
	ctx := WithLogger(context.Background(), scoped)
	if FromContext(ctx, fallback) != scoped {
		t.Error("expected scoped logger")
	}
}
