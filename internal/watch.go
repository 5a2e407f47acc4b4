package internal

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on roots and calls rebuild once changes
// settle, until ctx is cancelled. Missing roots are skipped. Paths for which
// ignore returns true never trigger a rebuild.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, roots []string, ignore func(string) bool, logger *slog.Logger, rebuild func(context.Context)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			logger.Warn("watcher: skipping root", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		if err := addDirsRecursive(w, root, ignore); err != nil {
			return err
		}
		logger.Info("watcher: started", slog.String("root", root))
	}

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			rebuild(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name, ignore) || ev.Op == fsnotify.Chmod {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, ignore); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// ignored skips editor swap files, temp files of atomic writes and whatever
// the caller excludes.
func ignored(path string, ignore func(string) bool) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".raido-tmp-") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}
	return ignore != nil && ignore(path)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, ignore func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignore != nil && ignore(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// within returns a predicate matching dir and everything below it.
func within(dir string) func(string) bool {
	dir = filepath.Clean(dir)
	return func(p string) bool {
		p = filepath.Clean(p)
		return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
	}
}
