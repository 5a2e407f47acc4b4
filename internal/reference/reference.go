// Package reference classifies the URLs found in content documents.
//
// A reference is one of a closed set of variants: a page of the site, a
// local asset, or a raw URL that is either fetched and optimized or emitted
// verbatim. Callers switch over the concrete types.
package reference

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// NoProcessSuffix marks a scheme whose target must not be fetched.
const NoProcessSuffix = "-noprocess"

// Scheme names understood by the resolver.
const (
	SchemePage     = "page"
	SchemeHyperref = "hyperref"
	SchemeAsset    = "asset"
)

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

// Ref is a resolved reference. The concrete type is one of Page, Asset or Raw.
type Ref interface {
	isRef()
}

// Page references another document of the site.
type Page struct {
	ID       models.NodeID
	Path     string // relative to the source root
	Fragment string
}

// Asset references a file under the assets root. Assets are always optimized.
type Asset struct {
	ID   models.NodeID
	Kind models.NodeKind
	Abs  string
}

// Raw references a URL outside the site. When Optimize is set the target is
// fetched and run through the image pipeline; otherwise it is emitted as is.
type Raw struct {
	URL      string
	Optimize bool
}

func (Page) isRef()  {}
func (Asset) isRef() {}
func (Raw) isRef()   {}

// Usage tells the resolver where the URL appeared.
type Usage int

const (
	UsageLink Usage = iota
	UsageImage
)

// Resolver maps reference URLs to canonical identities.
type Resolver struct {
	sourceRoot string
	assetsRoot string
}

// NewResolver creates a resolver over the given source and assets roots.
func NewResolver(sourceRoot, assetsRoot string) *Resolver {
	return &Resolver{sourceRoot: sourceRoot, assetsRoot: assetsRoot}
}

// Resolve classifies raw as seen in the document at from (source-relative).
func (r *Resolver) Resolve(from, raw string, usage Usage) (Ref, error) {
	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return Raw{URL: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case SchemePage, SchemeHyperref:
		return r.resolvePage(from, raw, rest)
	case SchemeAsset:
		return r.resolveAsset(raw, rest)
	}

	if base, found := strings.CutSuffix(scheme, NoProcessSuffix); found && base != "" {
		return Raw{URL: base + ":" + rest}, nil
	}
	if usage == UsageImage {
		return Raw{URL: raw, Optimize: true}, nil
	}
	return Raw{URL: raw}, nil
}

func (r *Resolver) resolvePage(from, raw, rest string) (Ref, error) {
	target, fragment, _ := strings.Cut(rest, "#")
	if target == "" {
		return nil, fmt.Errorf("%w: %s: empty page path", apperr.ErrUnresolvedReference, raw)
	}
	var rel string
	if strings.HasPrefix(target, "/") {
		rel = path.Clean(strings.TrimPrefix(target, "/"))
	} else {
		rel = path.Join(path.Dir(from), target)
	}
	if !strings.HasSuffix(rel, ".md") {
		rel += ".md"
	}
	if escapes(rel) || !isFile(filepath.Join(r.sourceRoot, filepath.FromSlash(rel))) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnresolvedReference, raw)
	}
	return Page{ID: models.PageID(rel), Path: rel, Fragment: fragment}, nil
}

func (r *Resolver) resolveAsset(raw, rest string) (Ref, error) {
	rel := path.Clean(strings.TrimPrefix(rest, "/"))
	if rel == "." || escapes(rel) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnresolvedReference, raw)
	}
	abs := filepath.Join(r.assetsRoot, filepath.FromSlash(rel))
	if !isFile(abs) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnresolvedReference, raw)
	}
	id := models.AssetID(rel)
	return Asset{ID: id, Kind: models.KindOf(id), Abs: abs}, nil
}

// splitScheme returns the scheme of an absolute reference. Relative URLs,
// fragments and Windows drive letters are reported as scheme-less.
func splitScheme(raw string) (scheme, rest string, ok bool) {
	i := strings.IndexByte(raw, ':')
	if i <= 1 {
		return "", "", false
	}
	scheme = raw[:i]
	if !schemeRe.MatchString(scheme) {
		return "", "", false
	}
	return scheme, raw[i+1:], true
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, "../")
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
