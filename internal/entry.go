// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/starford/raido/internal/assets"
	"github.com/starford/raido/internal/build"
	"github.com/starford/raido/internal/fetch"
	"github.com/starford/raido/internal/highlight"
	"github.com/starford/raido/internal/manifest"
	"github.com/starford/raido/internal/render"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/styles"
)

// Run builds the site with the given options. In watch mode it keeps
// rebuilding on changes until interrupted.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{stderr: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Site.Source),
		slog.String("assets", cfg.Site.Assets),
		slog.String("output", cfg.Site.Output),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize output storage.
	out, err := storage.Open(cfg.Site.Output)
	if err != nil {
		return fmt.Errorf("init output: %w", err)
	}

	// Initialize the build manifest.
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	db, err := manifest.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init manifest: %w", err)
	}
	defer db.Close()

	fetcher := fetch.New(fetch.Options{
		Timeout:    time.Duration(cfg.Fetch.Timeout),
		MaxBytes:   cfg.Fetch.MaxBytes,
		MaxRetries: cfg.Fetch.Retries,
		Backoff:    time.Duration(cfg.Fetch.Backoff),
		BlockLocal: cfg.Fetch.BlockLocal,
	})

	buildOnce := func(ctx context.Context) error {
		b, err := newBuilder(cfg, app.force, fetcher, out, db, logger)
		if err != nil {
			return err
		}
		_, err = b.Run(ctx)
		var failure *build.Failure
		if errors.As(err, &failure) {
			failure.WriteSummary(app.stderr)
		}
		return err
	}

	if !app.watch {
		return buildOnce(ctx)
	}

	if err := buildOnce(ctx); err != nil {
		logger.Error("Initial build failed", slog.String("error", err.Error()))
	}

	// Later builds only redo what changed.
	app.force = false
	roots := watchRoots(cfg)
	ignore := func(p string) bool {
		return within(cfg.Site.Output)(p) || within(filepath.Dir(cfg.SQLite.Path))(p)
	}
	err = Watch(ctx, roots, ignore, logger, func(ctx context.Context) {
		if err := buildOnce(ctx); err != nil {
			logger.Error("Rebuild failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	logger.Info("Watcher stopped successfully")
	return nil
}

// newBuilder assembles a Builder from cfg. Themes are reloaded every time so
// watch mode picks up edited theme files.
func newBuilder(cfg *Config, force bool, fetcher fetch.Fetcher, out storage.Writer, db build.Manifest, logger *slog.Logger) (*build.Builder, error) {
	themes := highlight.NewRegistry()
	if _, err := themes.LoadDir(cfg.Highlight.ThemeDir); err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}
	style, err := themes.Get(cfg.Highlight.Theme)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(themes.Names(), ", "))
	}

	return build.New(build.Params{
		Config: build.Config{
			SourceRoot:           cfg.Site.Source,
			AssetsRoot:           cfg.Site.Assets,
			Entry:                cfg.Site.Entry,
			Keep:                 cfg.Site.Keep,
			ShellPath:            cfg.Site.Prelude,
			DateLayout:           cfg.Build.DateLayout,
			Theme:                style.Name,
			Concurrency:          cfg.Build.Concurrency,
			Force:                force || cfg.Build.Force,
			TolerateFontFailures: cfg.Build.TolerateFontFailures,
			Images: assets.ImageOptions{
				Quality:         cfg.Build.ImageQuality,
				PassThroughWebP: cfg.Build.PassThroughWebP,
			},
		},
		Renderer: render.New(highlight.New(style)),
		Styles:   styles.NewLibrary(cfg.Styles.Root, cfg.Styles.Global, cfg.Styles.Names),
		Fetcher:  fetcher,
		Writer:   out,
		Manifest: db,
		Logger:   logger,
	})
}

// watchRoots lists the distinct directories whose contents feed the build.
func watchRoots(cfg *Config) []string {
	var roots []string
	for _, dir := range []string{
		cfg.Site.Source,
		cfg.Site.Assets,
		filepath.Dir(cfg.Site.Prelude),
		cfg.Styles.Root,
		cfg.Highlight.ThemeDir,
	} {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		if !slices.Contains(roots, dir) {
			roots = append(roots, dir)
		}
	}
	return roots
}
