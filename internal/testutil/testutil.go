// Package testutil provides shared test helpers for setting up site trees,
// manifests and fake fetchers.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/raido/internal/manifest"
)

// WriteTree writes files (slash-separated relative path → content) under root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// PNG returns a tiny PNG filled with c.
func PNG(t testing.TB, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// TestManifest creates a temporary manifest database that is automatically
// cleaned up.
func TestManifest(t testing.TB) *manifest.DB {
	t.Helper()
	db, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Fetcher serves canned responses and counts calls per URL.
type Fetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

// NewFetcher returns a Fetcher serving data.
func NewFetcher(data map[string][]byte) *Fetcher {
	if data == nil {
		data = make(map[string][]byte)
	}
	return &Fetcher{data: data, calls: make(map[string]int)}
}

// Fetch implements fetch.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	d, ok := f.data[rawURL]
	if !ok {
		return nil, fmt.Errorf("fetch %s: HTTP 404", rawURL)
	}
	return d, nil
}

// Calls returns how often rawURL was fetched.
func (f *Fetcher) Calls(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

// Total returns the number of fetches across all URLs.
func (f *Fetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
