package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/events"
)

func TestWatcherPublishesLibraryChanges(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventLibraryChanged)

	w := NewWatcher(dir, bus, zerolog.Nop())
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	path := filepath.Join(dir, "practice.json")
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case payload := <-sub:
			if payload["name"] != "practice" {
				t.Fatalf("unexpected payload: %v", payload)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep touching the file.
			if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)
		case <-deadline:
			t.Fatal("timed out waiting for library.changed")
		}
	}
}
