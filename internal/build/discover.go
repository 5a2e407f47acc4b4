package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/assets"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/frontmatter"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/manifest"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/reference"
	"github.com/starford/raido/internal/render"
	"github.com/starford/raido/internal/shell"
	"github.com/starford/raido/internal/styles"
)

// run is the state of one build. It lives from Run's start to its end.
type run struct {
	*Builder
	logger *slog.Logger
	shell  *shell.Shell
	prev   *manifest.State
	cache  *assets.Cache
	graph  *graph.Graph

	entry models.NodeID
	keep  models.NodeID

	// Salts mix settings that change the output into node hashes.
	pageSalt  string
	imageSalt string

	mu         sync.Mutex
	pages      map[models.NodeID]*page
	chunks     map[string]*styles.Chunk
	hashes     map[models.NodeID]string
	fontFailed map[models.NodeID]bool
	errs       error

	built       []models.NodeID
	pagesBuilt  int
	assetsBuilt int
}

// page is a document rendered during discovery.
type page struct {
	doc    *models.Document
	html   []byte
	styles []string // resolved chunk names, global first
}

// expand computes the hash and outgoing edges of a node.
func (r *run) expand(ctx context.Context, id models.NodeID) (graph.Expansion, error) {
	switch models.KindOf(id) {
	case models.KindPage:
		return r.expandPage(ctx, id)
	case models.KindStyleChunk:
		return r.expandStyle(id)
	case models.KindFontStylesheet:
		return r.expandFontSheet(ctx, id)
	case models.KindFontFile:
		return graph.Expansion{Hash: checksum.SumString(id.Key())}, nil
	case models.KindImage, models.KindFile:
		h, err := r.assetHash(ctx, r.assetFor(id))
		return graph.Expansion{Hash: h}, err
	}
	return graph.Expansion{}, fmt.Errorf("build: unknown node %s", id)
}

// expandPage parses and renders a document. Every reference the renderer
// resolves becomes an edge; the style chunks the page needs follow.
func (r *run) expandPage(ctx context.Context, id models.NodeID) (graph.Expansion, error) {
	rel := id.Key()
	raw, err := os.ReadFile(filepath.Join(r.cfg.SourceRoot, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return graph.Expansion{}, fmt.Errorf("%w: page %s", apperr.ErrNotFound, rel)
		}
		return graph.Expansion{}, fmt.Errorf("build: read %s: %w", rel, err)
	}

	isKeep := id == r.keep
	parse := frontmatter.Parse
	if isKeep {
		parse = frontmatter.ParseOptional
	}
	res, err := parse(raw)
	if err != nil {
		return graph.Expansion{}, err
	}
	doc := &models.Document{
		ID:     id,
		Path:   rel,
		Front:  res.Front,
		Body:   res.Body,
		Hash:   checksum.Sum(raw),
		IsKeep: isKeep,
	}

	var col graph.Collector
	out, err := r.renderer.Render(doc.Body, r.resolveFunc(ctx, rel, &col))
	if err != nil {
		return graph.Expansion{}, err
	}

	var names []string
	if !doc.IsKeep {
		var errs error
		for _, name := range styles.Order(out.Styles, doc.Front.Styles) {
			chunk, err := r.loadChunk(name, slices.Contains(doc.Front.Styles, name))
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if chunk == nil {
				continue
			}
			names = append(names, name)
			col.Add(models.StyleID(name), models.EdgeEmbed)
		}
		if errs != nil {
			return graph.Expansion{}, errs
		}
	}

	r.mu.Lock()
	r.pages[id] = &page{doc: doc, html: out.HTML, styles: names}
	r.mu.Unlock()

	return graph.Expansion{
		Hash:  checksum.Combine(doc.Hash, r.pageSalt),
		Edges: col.Edges(),
	}, nil
}

// resolveFunc maps references found in the document at rel to output URLs
// and records an edge for every local or fetched target.
func (r *run) resolveFunc(ctx context.Context, rel string, col *graph.Collector) render.ResolveFunc {
	return func(dest string, usage reference.Usage) (string, error) {
		ref, err := r.resolver.Resolve(rel, dest, usage)
		if err != nil {
			return "", err
		}
		switch v := ref.(type) {
		case reference.Page:
			col.Add(v.ID, models.EdgeLink)
			u := models.PageURL(v.Path)
			if v.Fragment != "" {
				u += "#" + v.Fragment
			}
			return u, nil
		case reference.Asset:
			a := models.Asset{ID: v.ID, Kind: v.Kind, Source: v.Abs, Local: true, Optimize: true}
			h, err := r.assetHash(ctx, a)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %v", apperr.ErrUnresolvedReference, dest, err)
			}
			col.Add(v.ID, models.EdgeEmbed)
			return "/" + assets.OutputPath(a, h), nil
		case reference.Raw:
			if !v.Optimize {
				return v.URL, nil
			}
			id := models.RemoteID(v.URL)
			a := r.assetFor(id)
			h, _ := r.assetHash(ctx, a)
			col.Add(id, models.EdgeEmbed)
			return "/" + assets.OutputPath(a, h), nil
		}
		return "", fmt.Errorf("build: unhandled reference %T", ref)
	}
}

// assetFor reconstructs the pipeline input of an asset node.
func (r *run) assetFor(id models.NodeID) models.Asset {
	scheme, key := id.Split()
	a := models.Asset{ID: id, Kind: models.KindOf(id), Source: key}
	switch scheme {
	case models.SchemeAsset:
		a.Source = filepath.Join(r.cfg.AssetsRoot, filepath.FromSlash(key))
		a.Local = true
		a.Optimize = true
	case models.SchemeRemote:
		a.Optimize = true
	}
	return a
}

// assetHash returns the node hash of an asset: local assets hash their
// bytes, remote ones their URL. Font files are never re-encoded and carry
// no salt.
func (r *run) assetHash(ctx context.Context, a models.Asset) (string, error) {
	r.mu.Lock()
	h, ok := r.hashes[a.ID]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	switch {
	case a.Kind == models.KindFontFile:
		h = checksum.SumString(a.Source)
	case a.Local:
		data, err := r.cache.Source(ctx, a)
		if err != nil {
			return "", err
		}
		h = checksum.Combine(checksum.Sum(data), r.imageSalt)
	default:
		h = checksum.Combine(checksum.SumString(a.Source), r.imageSalt)
	}

	r.mu.Lock()
	r.hashes[a.ID] = h
	r.mu.Unlock()
	return h, nil
}

// loadChunk loads a style chunk once per run. Skipped and failed loads are
// not remembered, so a later explicit request still reports the error.
func (r *run) loadChunk(name string, requested bool) (*styles.Chunk, error) {
	r.mu.Lock()
	c, ok := r.chunks[name]
	r.mu.Unlock()
	if ok {
		return c, nil
	}
	c, err := r.styles.Load(name, requested)
	if err != nil || c == nil {
		return nil, err
	}
	r.mu.Lock()
	r.chunks[name] = c
	r.mu.Unlock()
	return c, nil
}

// expandStyle hashes a chunk and links it to the webfont stylesheets its
// directives name.
func (r *run) expandStyle(id models.NodeID) (graph.Expansion, error) {
	chunk, err := r.loadChunk(id.Key(), true)
	if err != nil {
		return graph.Expansion{}, err
	}
	var edges []models.Edge
	for _, u := range assets.Directives(chunk.Text) {
		edges = append(edges, models.Edge{Target: models.FontStylesheetID(u), Kind: models.EdgeEmbed})
	}
	return graph.Expansion{Hash: checksum.Sum(chunk.Text), Edges: edges}, nil
}

// expandFontSheet fetches a webfont stylesheet and links it to its font
// files. An unchanged stylesheet reuses the edges recorded by the last
// successful run instead of being fetched.
func (r *run) expandFontSheet(ctx context.Context, id models.NodeID) (graph.Expansion, error) {
	u := id.Key()
	hash := checksum.SumString(u)
	if !r.cfg.Force {
		if rec := r.prev.Get(id); rec != nil && rec.Hash == hash {
			return graph.Expansion{Hash: hash, Edges: rec.Edges}, nil
		}
	}

	sheet, err := r.cache.Fetch(ctx, u)
	if err != nil {
		if r.cfg.TolerateFontFailures {
			// An empty hash keeps the stylesheet dirty so the next run retries.
			r.logger.Warn("build: webfont stylesheet unavailable, keeping external import",
				slog.String("node", string(id)),
				slog.String("error", err.Error()))
			return graph.Expansion{}, nil
		}
		return graph.Expansion{}, fmt.Errorf("%w: %s: %v", apperr.ErrFontFetch, u, err)
	}

	var edges []models.Edge
	for _, f := range assets.FontURLs(sheet, u) {
		edges = append(edges, models.Edge{Target: models.FontFileID(f), Kind: models.EdgeEmbed})
	}
	return graph.Expansion{Hash: hash, Edges: edges}, nil
}

// changed reports whether a node differs from its record in the last
// successful run.
func (r *run) changed(n *graph.Node) bool {
	rec := r.prev.Get(n.ID)
	if rec == nil || n.Hash == "" || rec.Hash != n.Hash {
		return true
	}
	if !slices.Equal(rec.Edges, n.Edges) {
		return true
	}
	if out := r.outputOf(n); out != "" && (rec.Output != out || !r.writer.Exists(out)) {
		return true
	}
	return false
}

// outputOf returns the output path of a used node, or "" for nodes that are
// inlined into pages or never emitted.
func (r *run) outputOf(n *graph.Node) string {
	if !n.Used() {
		return ""
	}
	switch {
	case n.Kind == models.KindPage:
		return models.PageOutputPath(n.ID.Key())
	case n.Kind.IsAsset():
		return assets.OutputPath(r.assetFor(n.ID), n.Hash)
	}
	return ""
}

// state builds the manifest of this run from every reachable node.
func (r *run) state() *manifest.State {
	st := manifest.NewState()
	for _, n := range r.graph.Nodes() {
		if !n.Reachable || n.Err != nil || r.fontFailed[n.ID] {
			continue
		}
		st.Put(&manifest.Record{
			ID:     n.ID,
			Kind:   n.Kind,
			Hash:   n.Hash,
			Output: r.outputOf(n),
			Edges:  n.Edges,
		})
	}
	return st
}
