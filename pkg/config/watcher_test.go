package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8686"
monitor:
  max_flows: 100
`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Let the watcher install its directory watch before writing.
	time.Sleep(200 * time.Millisecond)

	update := `
server:
  listen_address: "127.0.0.1:8686"
monitor:
  max_flows: 400
`
	if err := os.WriteFile(path, []byte(update), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Monitor.MaxFlows != 400 {
			t.Fatalf("reloaded max flows = %d, want 400", cfg.Monitor.MaxFlows)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8686"
`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Watch(ctx, func(cfg *Config) { reloaded <- cfg }) }()
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("server: [broken"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatal("invalid config should not trigger a reload")
	case <-time.After(time.Second):
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
