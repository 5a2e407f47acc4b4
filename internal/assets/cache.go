// Package assets turns asset nodes into output artifacts.
//
// A Cache is shared by every worker of one build run. Sources are read or
// fetched at most once per identity and artifacts are built at most once;
// concurrent requests for the same identity wait for the one in flight.
package assets

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/fetch"
	"github.com/starford/raido/internal/models"
)

// OutputDir is the output subdirectory that holds every artifact.
const OutputDir = "assets"

// memo is a singleflight group that also remembers completed results.
type memo[V any] struct {
	group singleflight.Group
	mu    sync.Mutex
	done  map[string]result[V]
}

type result[V any] struct {
	val V
	err error
}

func (m *memo[V]) get(key string, fn func() (V, error)) (V, error) {
	if r, ok := m.lookup(key); ok {
		return r.val, r.err
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		if r, ok := m.lookup(key); ok {
			return r.val, r.err
		}
		val, err := fn()
		m.mu.Lock()
		if m.done == nil {
			m.done = make(map[string]result[V])
		}
		m.done[key] = result[V]{val: val, err: err}
		m.mu.Unlock()
		return val, err
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (m *memo[V]) lookup(key string) (result[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.done[key]
	return r, ok
}

// Cache deduplicates source reads and artifact builds for one run.
type Cache struct {
	fetcher fetch.Fetcher
	images  ImageOptions

	sources   memo[[]byte]
	artifacts memo[*models.Artifact]

	fetches    atomic.Int64
	transforms atomic.Int64
}

// NewCache creates a cache backed by f.
func NewCache(f fetch.Fetcher, images ImageOptions) *Cache {
	return &Cache{fetcher: f, images: images}
}

// Source returns the bytes behind an asset source. Local sources are read
// from disk; anything else goes through the fetcher.
func (c *Cache) Source(ctx context.Context, a models.Asset) ([]byte, error) {
	return c.sources.get(a.Source, func() ([]byte, error) {
		c.fetches.Add(1)
		if a.Local {
			data, err := os.ReadFile(a.Source)
			if err != nil {
				return nil, fmt.Errorf("assets: read %s: %w", a.Source, err)
			}
			return data, nil
		}
		return c.fetcher.Fetch(ctx, a.Source)
	})
}

// Fetch returns the bytes behind a remote URL.
func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.Source(ctx, models.Asset{Source: url})
}

// Build produces the artifact of a, whose node hash is hash. The output
// name depends only on kind, source and hash, so it is known before the
// artifact is built.
func (c *Cache) Build(ctx context.Context, a models.Asset, hash string) (*models.Artifact, error) {
	return c.artifacts.get(string(a.ID), func() (*models.Artifact, error) {
		src, err := c.Source(ctx, a)
		if err != nil {
			return nil, err
		}
		c.transforms.Add(1)
		data := src
		if a.Kind == models.KindImage && a.Optimize {
			data, err = EncodeImage(src, a.Source, c.images)
			if err != nil {
				return nil, err
			}
		}
		return &models.Artifact{
			ID:     a.ID,
			Data:   data,
			Output: OutputPath(a, hash),
			Hash:   hash,
		}, nil
	})
}

// Stats returns the number of source reads and transforms performed.
func (c *Cache) Stats() (fetches, transforms int64) {
	return c.fetches.Load(), c.transforms.Load()
}

// OutputPath returns the output path of an asset, relative to the output
// root: assets/<short hash><ext>.
func OutputPath(a models.Asset, hash string) string {
	ext := sourceExt(a.Source)
	if a.Kind == models.KindImage && a.Optimize && ext != ".svg" {
		ext = ".webp"
	}
	return OutputDir + "/" + checksum.Short(hash) + ext
}

// sourceExt returns the lowercased extension of a path or URL, ignoring any
// query or fragment.
func sourceExt(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(src, "\\", "/")))
	if len(ext) > 8 || strings.ContainsAny(ext, "/:") {
		return ""
	}
	return ext
}
