package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherInitialScanDeliversAll(t *testing.T) {
	root := t.TempDir()
	const n = 400 // larger than the event channel buffer
	for i := 0; i < n; i++ {
		name := filepath.Join(root, fmt.Sprintf("doc-%03d.txt", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evCh, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true})
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]struct{}{}
	deadline := time.After(10 * time.Second)
	for len(seen) < n {
		select {
		case p := <-evCh:
			seen[p] = struct{}{}
		case <-deadline:
			t.Fatalf("received %d of %d initial paths", len(seen), n)
		}
	}
}

func TestWatcherDebouncedEvents(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	evCh, _, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{root},
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	want := map[string]struct{}{}
	for i := 0; i < n; i++ {
		name := filepath.Join(root, fmt.Sprintf("new-%02d.txt", i))
		if err := os.WriteFile(name, []byte("y"), 0o644); err != nil {
			t.Fatal(err)
		}
		want[name] = struct{}{}
	}

	seen := map[string]struct{}{}
	deadline := time.After(10 * time.Second)
	for len(seen) < n {
		select {
		case p := <-evCh:
			if _, ok := want[p]; ok {
				seen[p] = struct{}{}
			}
		case <-deadline:
			t.Fatalf("received %d of %d debounced paths", len(seen), n)
		}
	}
}

func TestWatcherNoRoots(t *testing.T) {
	if _, _, err := StartWatcher(context.Background(), WatchConfig{}); err == nil {
		t.Fatal("expected error for empty roots")
	}
}
