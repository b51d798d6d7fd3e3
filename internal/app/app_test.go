package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeAppConfig(t *testing.T, dir string, cfg map[string]any) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestStartFailureClosesStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Store config is valid; the email channel is not, so bootstrap
	// fails after the store has been opened.
	path := writeAppConfig(t, dir, map[string]any{
		"storage":  map[string]any{"driver": "file", "path": filepath.Join(dir, "jobs.json")},
		"channels": map[string]any{"email": map[string]any{"host": "", "port": 0, "from": ""}},
	})

	a, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail on invalid email channel")
	}
	if a.store != nil || a.sched != nil || a.api != nil {
		t.Fatalf("failed start left components running: store=%v sched=%v api=%v",
			a.store != nil, a.sched != nil, a.api != nil)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeAppConfig(t, dir, map[string]any{
		"storage": map[string]any{"driver": "file", "path": filepath.Join(dir, "jobs.json")},
		"http":    map[string]any{"addr": "127.0.0.1:0"},
	})

	a, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.api.Addr() == "" {
		t.Fatal("http listener not bound")
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
