package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestParseProjectID(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(good, []byte(`{"project_id":"dispatch-dev"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	id, err := parseProjectID(good)
	if err != nil || id != "dispatch-dev" {
		t.Fatalf("got %q, %v", id, err)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := parseProjectID(empty); err == nil {
		t.Error("expected an error for a missing project_id")
	}
	if _, err := parseProjectID(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDefaultDatabaseURL(t *testing.T) {
	want := "https://dispatch-dev-default-rtdb.asia-southeast1.firebasedatabase.app"
	if got := DefaultDatabaseURL("dispatch-dev"); got != want {
		t.Errorf("got %s", got)
	}
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb, err := NewRedis(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer rdb.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedis(context.Background(), addr); err == nil {
		t.Error("expected a ping failure once the server is gone")
	}
}
