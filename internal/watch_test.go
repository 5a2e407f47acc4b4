package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, roots []string, ignore func(string) bool) *atomic.Int32 {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var rebuilds atomic.Int32
	go Watch(ctx, roots, ignore, logger, func(context.Context) { rebuilds.Add(1) })
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	return &rebuilds
}

func TestWatch_ChangesDebounced(t *testing.T) {
	dir := t.TempDir()
	rebuilds := startWatch(t, []string{dir}, nil)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return rebuilds.Load() >= 1
	}, "expected a rebuild after writes")
	time.Sleep(3 * debounce)
	if n := rebuilds.Load(); n != 1 {
		t.Errorf("rebuilds = %d, want 1 for a burst of writes", n)
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	dir := t.TempDir()
	rebuilds := startWatch(t, []string{dir}, nil)

	sub := filepath.Join(dir, "posts")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return rebuilds.Load() >= 1
	}, "expected a rebuild after mkdir")
	before := rebuilds.Load()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "post.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return rebuilds.Load() > before
	}, "expected a rebuild for a file in a new dir")
}

func TestWatch_IgnoredPaths(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0o755); err != nil {
		t.Fatal(err)
	}
	rebuilds := startWatch(t, []string{dir}, within(out))

	if err := os.WriteFile(filepath.Join(out, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".raido-tmp-123"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(4 * debounce)
	if n := rebuilds.Load(); n != 0 {
		t.Errorf("rebuilds = %d, want 0 for ignored paths", n)
	}
}

func TestWithin(t *testing.T) {
	in := within("/site/out")
	cases := map[string]bool{
		"/site/out":            true,
		"/site/out/index.html": true,
		"/site/output/x":       false,
		"/site/src/index.md":   false,
	}
	for p, want := range cases {
		if got := in(p); got != want {
			t.Errorf("within(%q) = %v, want %v", p, got, want)
		}
	}
}
