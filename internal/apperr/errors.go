// Package apperr defines the build error taxonomy.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrMissingFrontMatter     = errors.New("missing front matter")
	ErrInvalidFrontMatter     = errors.New("invalid front matter")
	ErrUnresolvedReference    = errors.New("unresolved reference")
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrFontFetch              = errors.New("font fetch failed")
	ErrMissingRequiredSlot    = errors.New("missing required slot")
	ErrMalformedShell         = errors.New("malformed shell")
	ErrStyleChunkNotFound     = errors.New("style chunk not found")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMissingFrontMatter, "MissingFrontMatter"},
	{ErrInvalidFrontMatter, "InvalidFrontMatter"},
	{ErrUnresolvedReference, "UnresolvedReference"},
	{ErrUnsupportedImageFormat, "UnsupportedImageFormat"},
	{ErrFontFetch, "FontFetchError"},
	{ErrMissingRequiredSlot, "MissingRequiredSlot"},
	{ErrMalformedShell, "MalformedShell"},
	{ErrStyleChunkNotFound, "StyleChunkNotFound"},
	{ErrNotFound, "NotFound"},
}

// Kind returns the taxonomy name of err, or "Internal" when err does not
// wrap any of the known sentinels.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// NodeError attaches the identity of the failing node to an error.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Kind returns the taxonomy name of the wrapped error.
func (e *NodeError) Kind() string { return Kind(e.Err) }

// ForNode wraps err with the node identity. A nil err stays nil.
func ForNode(node string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) && ne.Node == node {
		return err
	}
	return &NodeError{Node: node, Err: err}
}
