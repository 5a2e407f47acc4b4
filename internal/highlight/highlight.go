// Package highlight turns fenced code blocks into styled markup using chroma
// lexers and themes.
package highlight

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = "github"

// Registry holds the themes available to the build: chroma's built-in
// styles plus any XML style files loaded from a theme directory.
type Registry struct {
	mu     sync.RWMutex
	themes map[string]*chroma.Style
}

// NewRegistry returns a registry seeded with the built-in themes.
func NewRegistry() *Registry {
	r := &Registry{themes: make(map[string]*chroma.Style, len(styles.Registry))}
	for name, s := range styles.Registry {
		r.themes[strings.ToLower(name)] = s
	}
	return r
}

// LoadDir registers every *.xml chroma style in dir. A missing directory is
// not an error. Loaded themes shadow built-ins with the same name.
func (r *Registry) LoadDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return 0, fmt.Errorf("highlight: glob themes: %w", err)
	}
	sort.Strings(matches)
	loaded := 0
	for _, p := range matches {
		s, err := loadStyle(p)
		if err != nil {
			return loaded, err
		}
		r.mu.Lock()
		r.themes[strings.ToLower(s.Name)] = s
		r.mu.Unlock()
		loaded++
	}
	return loaded, nil
}

func loadStyle(p string) (*chroma.Style, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("highlight: open theme %s: %w", p, err)
	}
	defer f.Close()
	s, err := chroma.NewXMLStyle(f)
	if err != nil {
		return nil, fmt.Errorf("highlight: parse theme %s: %w", p, err)
	}
	return s, nil
}

// Get returns the named theme.
func (r *Registry) Get(name string) (*chroma.Style, error) {
	if name == "" {
		name = DefaultTheme
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.themes[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("highlight: unknown theme %q", name)
	}
	return s, nil
}

// Names lists the registered themes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.themes))
	for n := range r.themes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Highlighter formats code with one theme. It is safe for concurrent use.
type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// New returns a highlighter emitting inline styles, so pages need no extra
// stylesheet.
func New(style *chroma.Style) *Highlighter {
	return &Highlighter{
		style:     style,
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4)),
	}
}

// Supports reports whether a lexer exists for the language tag.
func Supports(lang string) bool {
	return lang != "" && lexers.Get(lang) != nil
}

// Highlight writes styled markup for code. It returns false without writing
// anything when the language is not supported.
func (h *Highlighter) Highlight(w io.Writer, lang, code string) (bool, error) {
	if lang == "" {
		return false, nil
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return false, nil
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return false, fmt.Errorf("highlight: tokenise %s: %w", lang, err)
	}
	if err := h.formatter.Format(w, h.style, it); err != nil {
		return false, fmt.Errorf("highlight: format %s: %w", lang, err)
	}
	return true, nil
}
