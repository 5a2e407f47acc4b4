// Package build runs one build of the site: it discovers the dependency
// graph from the entry page and the keep file, plans what changed since the
// last successful run, runs the asset pipelines, composes pages into the
// shell, writes the output and, only when every node succeeded, prunes stale
// files and commits the manifest.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/assets"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/fetch"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/manifest"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/reference"
	"github.com/starford/raido/internal/render"
	"github.com/starford/raido/internal/shell"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/styles"
)

// Config holds the settings of a build.
type Config struct {
	SourceRoot string
	AssetsRoot string
	// Entry and Keep are relative to SourceRoot. A missing keep file is
	// ignored.
	Entry string
	Keep  string
	// ShellPath is the page shell, compiled at the start of every run.
	ShellPath  string
	DateLayout string
	// Theme is the highlight theme name; it takes part in page hashes.
	Theme       string
	Concurrency int
	// Force rebuilds every reachable node regardless of recorded hashes.
	Force                bool
	TolerateFontFailures bool
	Images               assets.ImageOptions
}

// Manifest persists build state between runs.
type Manifest interface {
	Load(ctx context.Context) (*manifest.State, error)
	Commit(ctx context.Context, st *manifest.State, run manifest.Run) error
	RecordRun(ctx context.Context, run manifest.Run) error
}

// Params are the collaborators of a Builder.
type Params struct {
	Config   Config
	Renderer *render.Renderer
	Styles   *styles.Library
	Fetcher  fetch.Fetcher
	Writer   storage.Writer
	Manifest Manifest
	Logger   *slog.Logger
}

// Builder runs builds. It is safe to call Run repeatedly, but not
// concurrently.
type Builder struct {
	cfg      Config
	renderer *render.Renderer
	styles   *styles.Library
	resolver *reference.Resolver
	fetcher  fetch.Fetcher
	writer   storage.Writer
	manifest Manifest
	logger   *slog.Logger
}

// New creates a Builder.
func New(p Params) (*Builder, error) {
	if p.Renderer == nil || p.Styles == nil || p.Fetcher == nil || p.Writer == nil || p.Manifest == nil {
		return nil, errors.New("build: missing collaborator")
	}
	cfg := p.Config
	if cfg.Entry == "" {
		cfg.Entry = "index.md"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = shell.DefaultDateLayout
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		cfg:      cfg,
		renderer: p.Renderer,
		styles:   p.Styles,
		resolver: reference.NewResolver(cfg.SourceRoot, cfg.AssetsRoot),
		fetcher:  p.Fetcher,
		writer:   p.Writer,
		manifest: p.Manifest,
		logger:   logger,
	}, nil
}

// Report describes a finished run.
type Report struct {
	RunID     string
	Reachable int
	// Built lists the nodes written this run, sorted.
	Built  []models.NodeID
	Pages  int
	Assets int
	// Pruned lists stale output paths removed after a successful run.
	Pruned   []string
	Duration time.Duration
}

// Run performs one build. Per-node failures do not stop independent work;
// they are returned together as a *Failure after every node was attempted,
// in which case nothing is pruned and the manifest is left untouched. Shell
// and manifest errors abort the run immediately.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := b.logger.With(slog.String("run", runID))

	src, err := os.ReadFile(b.cfg.ShellPath)
	if err != nil {
		return nil, fmt.Errorf("build: read shell: %w", err)
	}
	sh, err := shell.Compile(src, b.cfg.DateLayout)
	if err != nil {
		return nil, fmt.Errorf("build: compile shell %s: %w", b.cfg.ShellPath, err)
	}

	prev, err := b.manifest.Load(ctx)
	if err != nil {
		return nil, err
	}

	r := &run{
		Builder:    b,
		logger:     logger,
		shell:      sh,
		prev:       prev,
		cache:      assets.NewCache(b.fetcher, b.cfg.Images),
		graph:      graph.New(),
		entry:      models.PageID(b.cfg.Entry),
		pageSalt:   checksum.Combine(checksum.Sum(src), b.cfg.DateLayout, b.cfg.Theme),
		imageSalt:  checksum.Combine(fmt.Sprint(b.cfg.Images.Quality), fmt.Sprint(b.cfg.Images.PassThroughWebP)),
		pages:      make(map[models.NodeID]*page),
		chunks:     make(map[string]*styles.Chunk),
		hashes:     make(map[models.NodeID]string),
		fontFailed: make(map[models.NodeID]bool),
	}
	if b.cfg.Keep != "" && fileExists(filepath.Join(b.cfg.SourceRoot, filepath.FromSlash(b.cfg.Keep))) {
		r.keep = models.PageID(b.cfg.Keep)
	}

	logger.Info("build: started", slog.Bool("force", b.cfg.Force), slog.String("entry", string(r.entry)))

	roots := []models.NodeID{r.entry}
	if r.keep != "" {
		roots = append(roots, r.keep)
	}
	if err := r.graph.Discover(ctx, roots, r.keep, b.cfg.Concurrency, r.expand); err != nil {
		return nil, fmt.Errorf("build: discover: %w", err)
	}
	for _, n := range r.graph.Failed() {
		r.fail(n.ID, n.Err)
	}

	r.graph.MarkDirty(r.changed)
	plan := r.graph.Plan(b.cfg.Force)
	logger.Debug("build: planned",
		slog.Int("nodes", r.graph.Len()),
		slog.Int("planned", len(plan)))

	if err := r.execute(ctx, plan); err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, Built: r.built, Pages: r.pagesBuilt, Assets: r.assetsBuilt}
	for _, n := range r.graph.Nodes() {
		if n.Reachable {
			report.Reachable++
		}
	}
	sort.Slice(report.Built, func(i, j int) bool { return report.Built[i] < report.Built[j] })

	manifestRun := manifest.Run{
		ID:        runID,
		StartedAt: started,
		Pages:     report.Pages,
		Assets:    report.Assets,
	}

	if failure := r.failure(); failure != nil {
		manifestRun.FinishedAt = time.Now()
		manifestRun.Status = manifest.StatusFailed
		manifestRun.Failures = len(failure.Nodes())
		if err := b.manifest.RecordRun(ctx, manifestRun); err != nil {
			logger.Warn("build: record failed run", slog.String("error", err.Error()))
		}
		report.Duration = time.Since(started)
		logger.Error("build: failed",
			slog.Int("failures", manifestRun.Failures),
			slog.Duration("duration", report.Duration))
		return report, failure
	}

	next := r.state()
	pruned, err := storage.Prune(b.writer, storage.Stale(prev.Outputs(), next.Outputs()))
	if err != nil {
		logger.Warn("build: prune", slog.String("error", err.Error()))
	}
	for _, p := range pruned {
		logger.Debug("build: pruned", slog.String("path", p))
	}
	report.Pruned = pruned

	manifestRun.FinishedAt = time.Now()
	manifestRun.Status = manifest.StatusSuccess
	if err := b.manifest.Commit(ctx, next, manifestRun); err != nil {
		return report, fmt.Errorf("build: commit manifest: %w", err)
	}

	report.Duration = time.Since(started)
	fetches, transforms := r.cache.Stats()
	logger.Info("build: finished",
		slog.Int("reachable", report.Reachable),
		slog.Int("pages", report.Pages),
		slog.Int("assets", report.Assets),
		slog.Int("pruned", len(pruned)),
		slog.Int64("fetches", fetches),
		slog.Int64("transforms", transforms),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
