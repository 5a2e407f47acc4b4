package build

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/assets"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/shell"
	"github.com/starford/raido/internal/styles"
)

// execute builds the planned nodes: assets first, then pages, since a page
// may inline font URLs whose fate is decided by the asset stage. Failures
// are recorded per node; only cancellation stops the run.
func (r *run) execute(ctx context.Context, plan []*graph.Node) error {
	var assetNodes, pageNodes []*graph.Node
	for _, n := range plan {
		if !n.Used() || n.Err != nil {
			continue
		}
		switch {
		case n.Kind.IsAsset():
			assetNodes = append(assetNodes, n)
		case n.Kind == models.KindPage:
			pageNodes = append(pageNodes, n)
		}
	}

	if err := r.each(ctx, assetNodes, r.buildAsset); err != nil {
		return err
	}
	return r.each(ctx, pageNodes, r.buildPage)
}

// each runs fn over nodes with the configured concurrency. Node errors are
// recorded and never cancel siblings.
func (r *run) each(ctx context.Context, nodes []*graph.Node, fn func(context.Context, *graph.Node) error) error {
	eg := new(errgroup.Group)
	eg.SetLimit(r.cfg.Concurrency)
	for _, n := range nodes {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := fn(ctx, n); err != nil {
				r.fail(n.ID, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return ctx.Err()
}

func (r *run) buildAsset(ctx context.Context, n *graph.Node) error {
	art, err := r.cache.Build(ctx, r.assetFor(n.ID), n.Hash)
	if err != nil {
		if n.Kind != models.KindFontFile {
			return err
		}
		if r.cfg.TolerateFontFailures {
			r.logger.Warn("build: font file unavailable, keeping external URL",
				slog.String("node", string(n.ID)),
				slog.String("error", err.Error()))
			r.mu.Lock()
			r.fontFailed[n.ID] = true
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("%w: %s: %v", apperr.ErrFontFetch, n.ID.Key(), err)
	}
	if err := r.writer.Write(art.Output, art.Data); err != nil {
		return err
	}
	r.logger.Debug("build: asset written",
		slog.String("node", string(n.ID)),
		slog.String("path", art.Output))
	r.record(n.ID, false)
	return nil
}

func (r *run) buildPage(ctx context.Context, n *graph.Node) error {
	r.mu.Lock()
	p := r.pages[n.ID]
	r.mu.Unlock()
	if p == nil {
		return fmt.Errorf("build: page %s was not rendered", n.ID)
	}

	css, err := r.stylesheet(ctx, p.styles)
	if err != nil {
		return err
	}
	out := r.shell.Compose(shell.Values{
		Content:    p.html,
		Styles:     css,
		Title:      p.doc.Front.Title,
		Date:       p.doc.Front.Date,
		TimeToRead: p.doc.Front.TimeToRead,
	})

	path := p.doc.OutputPath()
	if err := r.writer.Write(path, out); err != nil {
		return err
	}
	r.logger.Debug("build: page written",
		slog.String("node", string(n.ID)),
		slog.String("path", path))
	r.record(n.ID, true)
	return nil
}

// stylesheet assembles the style element of a page from its chunks,
// inlining webfont directives.
func (r *run) stylesheet(ctx context.Context, names []string) ([]byte, error) {
	texts := make([][]byte, 0, len(names))
	var errs error
	for _, name := range names {
		r.mu.Lock()
		chunk := r.chunks[name]
		r.mu.Unlock()
		if chunk == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", apperr.ErrStyleChunkNotFound, name))
			continue
		}
		text, err := assets.ReplaceDirectives(chunk.Text, func(sheetURL string) ([]byte, error) {
			return r.inlineFont(ctx, sheetURL)
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		texts = append(texts, text)
	}
	if errs != nil {
		return nil, errs
	}
	return styles.Assemble(texts), nil
}

// inlineFont returns the text of a webfont stylesheet with its font URLs
// pointing at the local copies. When fonts may fail, an unavailable
// stylesheet becomes an @import of the original URL and unavailable font
// files keep their remote URL.
func (r *run) inlineFont(ctx context.Context, sheetURL string) ([]byte, error) {
	sheet, err := r.cache.Fetch(ctx, sheetURL)
	if err != nil {
		if r.cfg.TolerateFontFailures {
			return assets.ImportRule(sheetURL), nil
		}
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrFontFetch, sheetURL, err)
	}
	return assets.RewriteFontURLs(sheet, sheetURL, func(abs string) (string, bool) {
		id := models.FontFileID(abs)
		r.mu.Lock()
		failed := r.fontFailed[id]
		r.mu.Unlock()
		if failed {
			return "", false
		}
		return "/" + assets.OutputPath(r.assetFor(id), checksum.SumString(abs)), true
	}), nil
}

func (r *run) record(id models.NodeID, isPage bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = append(r.built, id)
	if isPage {
		r.pagesBuilt++
	} else {
		r.assetsBuilt++
	}
}

func (r *run) fail(id models.NodeID, err error) {
	attrs := []any{
		slog.String("node", string(id)),
		slog.String("kind", apperr.Kind(err)),
		slog.String("error", err.Error()),
	}
	if used := r.graph.Embedders(id); len(used) > 0 {
		attrs = append(attrs, slog.Any("used_by", used))
	}
	r.logger.Error("build: node failed", attrs...)
	r.mu.Lock()
	r.errs = multierr.Append(r.errs, apperr.ForNode(string(id), err))
	r.mu.Unlock()
}

func (r *run) failure() *Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		return nil
	}
	return &Failure{Err: r.errs}
}
