// Package models defines the domain types for raido.
package models

import (
	"path"
	"strings"
)

// NodeKind classifies a node of the dependency graph.
type NodeKind string

const (
	KindPage           NodeKind = "page"
	KindImage          NodeKind = "image"
	KindFile           NodeKind = "file"
	KindStyleChunk     NodeKind = "style"
	KindFontStylesheet NodeKind = "font-css"
	KindFontFile       NodeKind = "font"
)

// IsAsset reports whether nodes of this kind go through an asset pipeline.
func (k NodeKind) IsAsset() bool {
	switch k {
	case KindImage, KindFile, KindFontFile:
		return true
	}
	return false
}

// NodeID is the canonical identity of a graph node: "<scheme>:<key>".
type NodeID string

// ID scheme prefixes.
const (
	SchemePage    = "page"
	SchemeAsset   = "asset"
	SchemeRemote  = "remote"
	SchemeStyle   = "style"
	SchemeFontCSS = "font-css"
	SchemeFont    = "font"
)

// PageID returns the identity of a document given its source-relative path.
func PageID(rel string) NodeID { return NodeID(SchemePage + ":" + cleanRel(rel)) }

// AssetID returns the identity of a local asset given its assets-relative path.
func AssetID(rel string) NodeID { return NodeID(SchemeAsset + ":" + cleanRel(rel)) }

// RemoteID returns the identity of a fetched image.
func RemoteID(url string) NodeID { return NodeID(SchemeRemote + ":" + url) }

// StyleID returns the identity of a named style chunk.
func StyleID(name string) NodeID { return NodeID(SchemeStyle + ":" + name) }

// FontStylesheetID returns the identity of a webfont stylesheet.
func FontStylesheetID(url string) NodeID { return NodeID(SchemeFontCSS + ":" + url) }

// FontFileID returns the identity of a font file referenced by a webfont stylesheet.
func FontFileID(url string) NodeID { return NodeID(SchemeFont + ":" + url) }

// Split returns the scheme and key of the identity.
func (id NodeID) Split() (scheme, key string) {
	s, k, ok := strings.Cut(string(id), ":")
	if !ok {
		return "", string(id)
	}
	return s, k
}

// Key returns the part after the scheme.
func (id NodeID) Key() string {
	_, k := id.Split()
	return k
}

func (id NodeID) String() string { return string(id) }

func cleanRel(rel string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(rel, "\\", "/")), "/")
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsImagePath reports whether p has an image file extension.
func IsImagePath(p string) bool {
	return imageExts[strings.ToLower(path.Ext(p))]
}

// KindOf derives the node kind from an identity.
func KindOf(id NodeID) NodeKind {
	scheme, key := id.Split()
	switch scheme {
	case SchemePage:
		return KindPage
	case SchemeAsset:
		if IsImagePath(key) {
			return KindImage
		}
		return KindFile
	case SchemeRemote:
		return KindImage
	case SchemeStyle:
		return KindStyleChunk
	case SchemeFontCSS:
		return KindFontStylesheet
	case SchemeFont:
		return KindFontFile
	}
	return ""
}

// EdgeKind says whether an edge only carries reachability or also a
// content dependency.
type EdgeKind string

const (
	// EdgeLink is a hyperlink between pages: reachability only.
	EdgeLink EdgeKind = "link"
	// EdgeEmbed means the source's output embeds the target: reachability
	// plus invalidation.
	EdgeEmbed EdgeKind = "embed"
)

// Edge is a typed outgoing reference of a node.
type Edge struct {
	Target NodeID
	Kind   EdgeKind
}
