// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// touch rewrites path with a modification time safely after the last one.
func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatchCLIDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  model: model-a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := WatchCLI(ctx, []string{"--config", path, "--set", "llm.temperature=0.1"}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Stop()

	if w.Config().LLM.Model != "model-a" {
		t.Fatalf("unexpected initial model %q", w.Config().LLM.Model)
	}

	changes := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	touch(t, path, "llm:\n  model: model-b\n")

	select {
	case cfg := <-changes:
		if cfg.LLM.Model != "model-b" {
			t.Errorf("expected model-b, got %q", cfg.LLM.Model)
		}
		if cfg.LLM.Temperature != 0.1 {
			t.Errorf("expected CLI override to survive reload, got %v", cfg.LLM.Temperature)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: ollama\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := NewWatcher([]string{path}, func() (*Config, error) { return Load(path) })
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}

	touch(t, path, "llm:\n  provider: gemini\n")
	if !w.changed() {
		t.Fatalf("expected change to be detected")
	}
	w.reload()

	if w.Config().LLM.Provider != "ollama" {
		t.Fatalf("invalid reload replaced config: %s", w.Config().LLM.Provider)
	}
}

func TestWatcherStops(t *testing.T) {
	w, err := NewWatcher(nil, func() (*Config, error) { return Load("") }, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherNoticesSizeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  model: a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := NewWatcher([]string{path, filepath.Join(dir, "missing.yaml")}, func() (*Config, error) { return Load(path) })
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	if w.changed() {
		t.Fatalf("no change expected right after start")
	}

	info, _ := os.Stat(path)
	if err := os.WriteFile(path, []byte("llm:\n  model: longer\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if !w.changed() {
		t.Fatalf("size change with the same mtime must be detected")
	}
	w.reload()
	if w.Config().LLM.Model != "longer" {
		t.Fatalf("expected reload, got %q", w.Config().LLM.Model)
	}
}
