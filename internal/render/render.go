// Package render converts a document body into an HTML fragment, handing
// every link and image destination to a caller-supplied resolver and
// recording which element styles the fragment needs.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.uber.org/multierr"

	"github.com/starford/raido/internal/highlight"
	"github.com/starford/raido/internal/reference"
)

// ResolveFunc maps a destination found in the document to the URL that is
// emitted in its place.
type ResolveFunc func(dest string, usage reference.Usage) (string, error)

// Output is the rendered fragment plus the element styles it uses, in the
// order they were first encountered.
type Output struct {
	HTML   []byte
	Styles []string
}

// Renderer is a goldmark pipeline with chroma-backed code blocks.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a renderer. h may be nil, in which case fenced code is always
// emitted as plain text.
func New(h *highlight.Highlighter) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{h: h}, 100)),
		),
	)
	return &Renderer{md: md}
}

// Render parses body, rewrites destinations through resolve and renders
// HTML. Every failing destination is reported; the fragment is discarded
// when any of them fails.
func (r *Renderer) Render(body []byte, resolve ResolveFunc) (*Output, error) {
	doc := r.md.Parser().Parse(text.NewReader(body))

	styles := newStyleSet()
	var errs error
	var emoji []*ast.Text
	var autolinks []autolink

	walkErr := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if name := styleName(n); name != "" {
			styles.add(name)
		}
		switch node := n.(type) {
		case *ast.CodeSpan:
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			dest, err := resolve(string(node.Destination), reference.UsageLink)
			if err != nil {
				errs = multierr.Append(errs, err)
				return ast.WalkContinue, nil
			}
			node.Destination = []byte(dest)
		case *ast.AutoLink:
			dest, err := resolve(string(node.URL(body)), reference.UsageLink)
			if err != nil {
				errs = multierr.Append(errs, err)
				return ast.WalkContinue, nil
			}
			autolinks = append(autolinks, autolink{node: node, dest: dest})
		case *ast.Image:
			dest, err := resolve(string(node.Destination), reference.UsageImage)
			if err != nil {
				errs = multierr.Append(errs, err)
				return ast.WalkContinue, nil
			}
			node.Destination = []byte(dest)
		case *ast.Text:
			if bytes.Contains(node.Segment.Value(body), eyes) {
				emoji = append(emoji, node)
			}
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("render: walk: %w", walkErr)
	}
	if errs != nil {
		return nil, errs
	}

	for _, t := range emoji {
		replaceEmoji(t, body)
	}
	for _, l := range autolinks {
		l.replace(body)
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, body, doc); err != nil {
		return nil, fmt.Errorf("render: html: %w", err)
	}
	return &Output{HTML: buf.Bytes(), Styles: styles.names}, nil
}

var eyes = []byte(":eyes:")

// replaceEmoji swaps a text node for a string node with the shortcode
// substituted. Line breaks of the text node are carried over.
func replaceEmoji(t *ast.Text, source []byte) {
	parent := t.Parent()
	if parent == nil {
		return
	}
	v := bytes.ReplaceAll(t.Segment.Value(source), eyes, []byte("👀"))
	if t.SoftLineBreak() && !t.HardLineBreak() {
		v = append(v, '\n')
	}
	s := ast.NewString(v)
	parent.ReplaceChild(parent, t, s)
	if t.HardLineBreak() {
		br := ast.NewString([]byte("<br>\n"))
		br.SetRaw(true)
		parent.InsertAfter(parent, s, br)
	}
}

// autolink is an autolink whose URL was resolved during the walk. goldmark
// autolinks render their own URL, so they are replaced by regular links.
type autolink struct {
	node *ast.AutoLink
	dest string
}

func (a autolink) replace(source []byte) {
	parent := a.node.Parent()
	if parent == nil {
		return
	}
	link := ast.NewLink()
	link.Destination = []byte(a.dest)
	link.AppendChild(link, ast.NewString(a.node.Label(source)))
	parent.ReplaceChild(parent, a.node, link)
}

func styleName(n ast.Node) string {
	switch node := n.(type) {
	case *ast.Paragraph:
		return "paragraph"
	case *ast.Link, *ast.AutoLink:
		return "link"
	case *ast.Image:
		return "image"
	case *ast.Heading:
		return fmt.Sprintf("h%d", node.Level)
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.CodeSpan:
		return "code"
	case *ast.Blockquote:
		return "blockquote"
	case *ast.List:
		return "list"
	case *ast.ThematicBreak:
		return "hr"
	case *extast.Table:
		return "table"
	}
	return ""
}

type styleSet struct {
	seen  map[string]struct{}
	names []string
}

func newStyleSet() *styleSet {
	return &styleSet{seen: make(map[string]struct{})}
}

func (s *styleSet) add(name string) {
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}
