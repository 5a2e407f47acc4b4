// Package styles resolves named style chunks and assembles a page's
// stylesheet.
package styles

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// Global is the reserved name of the chunk every page includes.
const Global = "global"

// DefaultGlobalFile is the file the global chunk maps to when not configured.
const DefaultGlobalFile = "_global.css"

// Library maps style names to files under a chunk root.
type Library struct {
	root       string
	globalFile string
	names      map[string]string
}

// NewLibrary creates a library. names overrides the default name→file
// mapping; globalFile may be empty to use DefaultGlobalFile.
func NewLibrary(root, globalFile string, names map[string]string) *Library {
	if globalFile == "" {
		globalFile = DefaultGlobalFile
	}
	return &Library{root: root, globalFile: globalFile, names: names}
}

// File returns the absolute path a name maps to and whether the mapping was
// configured explicitly.
func (l *Library) File(name string) (file string, explicit bool) {
	if f, ok := l.names[name]; ok {
		return l.abs(f), true
	}
	if name == Global {
		return l.abs(l.globalFile), false
	}
	return l.abs(name + ".css"), false
}

// validName reports whether name can address a chunk file. Names are plain
// file stems; separators and dot segments would leave the chunk root.
func validName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func (l *Library) abs(f string) string {
	if filepath.IsAbs(f) {
		return f
	}
	return filepath.Join(l.root, filepath.FromSlash(f))
}

// Chunk is a loaded style chunk.
type Chunk struct {
	Name string
	Path string
	Text []byte
}

// Load reads the chunk for name. A missing file is skipped (nil chunk, nil
// error) when the name uses the default mapping and was not requested
// explicitly; otherwise it is ErrStyleChunkNotFound.
func (l *Library) Load(name string, requested bool) (*Chunk, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid style name %q", apperr.ErrStyleChunkNotFound, name)
	}
	file, explicit := l.File(name)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !explicit && !requested {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %s (%s)", apperr.ErrStyleChunkNotFound, name, file)
		}
		return nil, fmt.Errorf("styles: read %s: %w", file, err)
	}
	return &Chunk{Name: name, Path: file, Text: data}, nil
}

// Order returns the global chunk followed by the remaining names in
// first-seen order, without duplicates.
func Order(names ...[]string) []string {
	out := []string{Global}
	seen := map[string]bool{Global: true}
	for _, list := range names {
		for _, n := range list {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Assemble joins chunk texts into a single style element.
func Assemble(texts [][]byte) []byte {
	var b bytes.Buffer
	b.WriteString("<style>\n")
	b.Write(bytes.Join(texts, []byte("\n")))
	b.WriteString("\n</style>")
	return b.Bytes()
}
