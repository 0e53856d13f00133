package store

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openPair opens two independent connections to the same on-disk database.
// data_version only moves for writes made by *another* connection, so the
// watcher must observe through one handle while writes go through the other.
func openPair(t *testing.T) (*Store, *Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.db")

	watched, err := Open(path)
	if err != nil {
		t.Fatalf("open watched: %v", err)
	}
	t.Cleanup(func() { watched.Close() })

	writer, err := Open(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { writer.Close() })

	return watched, writer
}

func TestWatcher_FiresOnExternalWrite(t *testing.T) {
	watched, writer := openPair(t)

	var fired atomic.Int32
	w := NewWatcher(watched, WatchOptions{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(context.Context) error {
			fired.Add(1)
			return nil
		})
	}()

	// Let the initial version seed.
	time.Sleep(60 * time.Millisecond)

	if err := writer.Set(ctx, "example.com", "body{color:red}"); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never fired after external write")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	stats := w.Stats()
	if stats.Changes == 0 {
		t.Error("Stats.Changes = 0, want > 0")
	}
}

func TestWatcher_NoFireWithoutChange(t *testing.T) {
	watched, _ := openPair(t)

	var fired atomic.Int32
	w := NewWatcher(watched, WatchOptions{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx, func(context.Context) error {
		fired.Add(1)
		return nil
	})

	if fired.Load() != 0 {
		t.Errorf("watcher fired %d times with no writes", fired.Load())
	}
}
