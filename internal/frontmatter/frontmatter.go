// Package frontmatter extracts the YAML metadata block at the head of a
// content document.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// DateLayout is the calendar-date format accepted for the date field.
const DateLayout = "01/02/2006"

const delim = "---"

// Result holds the output of parsing a document.
type Result struct {
	Front models.FrontMatter
	Body  []byte
}

type fields struct {
	Title      *string  `yaml:"title"`
	Date       *string  `yaml:"date"`
	TimeToRead *string  `yaml:"time_to_read"`
	Styles     []string `yaml:"styles"`
}

// Parse splits data into front matter and body. The block is mandatory.
func Parse(data []byte) (*Result, error) {
	block, body, ok := split(data)
	if !ok {
		return nil, apperr.ErrMissingFrontMatter
	}
	fm, err := decode(block)
	if err != nil {
		return nil, err
	}
	return &Result{Front: fm, Body: body}, nil
}

// ParseOptional behaves like Parse but treats a missing block as an empty
// one. A present but malformed block is still an error.
func ParseOptional(data []byte) (*Result, error) {
	block, body, ok := split(data)
	if !ok {
		return &Result{Body: data}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidFrontMatter, err)
	}
	if len(doc.Content) == 0 {
		return &Result{Body: body}, nil
	}
	var f fields
	if err := decodeMapping(&doc, &f); err != nil {
		return nil, err
	}
	fm, err := convert(f, false)
	if err != nil {
		return nil, err
	}
	return &Result{Front: fm, Body: body}, nil
}

// split separates the block between the leading --- delimiters from the
// body. ok is false when the document does not open with a delimiter line
// or the closing delimiter is missing.
func split(data []byte) (block, body []byte, ok bool) {
	trimmed := bytes.TrimLeft(data, "\r\n")
	first, rest, found := cutLine(trimmed)
	if !found || strings.TrimRight(string(first), " \t") != delim {
		return nil, nil, false
	}

	start := len(trimmed) - len(rest)
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		if strings.TrimRight(string(line), " \t") == delim {
			end := len(trimmed) - len(rest)
			return trimmed[start:end], bytes.TrimLeft(next, "\r\n"), true
		}
		rest = next
	}
	return nil, nil, false
}

// cutLine returns the first line of b without its terminator.
func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return bytes.TrimSuffix(b, []byte("\r")), nil, len(b) > 0
	}
	return bytes.TrimSuffix(b[:i], []byte("\r")), b[i+1:], true
}

func decode(block []byte) (models.FrontMatter, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(block, &node); err != nil {
		return models.FrontMatter{}, fmt.Errorf("%w: %v", apperr.ErrInvalidFrontMatter, err)
	}
	var f fields
	if err := decodeMapping(&node, &f); err != nil {
		return models.FrontMatter{}, err
	}
	return convert(f, true)
}

func decodeMapping(node *yaml.Node, f *fields) error {
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: block is not a mapping", apperr.ErrInvalidFrontMatter)
	}
	if err := node.Content[0].Decode(f); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidFrontMatter, err)
	}
	return nil
}

func convert(f fields, requireTitle bool) (models.FrontMatter, error) {
	var fm models.FrontMatter
	if f.Title != nil {
		fm.Title = strings.TrimSpace(*f.Title)
	}
	if requireTitle && fm.Title == "" {
		return fm, fmt.Errorf("%w: title is required", apperr.ErrInvalidFrontMatter)
	}
	if f.Date != nil {
		d, err := time.Parse(DateLayout, strings.TrimSpace(*f.Date))
		if err != nil {
			return fm, fmt.Errorf("%w: date %q is not MM/DD/YYYY", apperr.ErrInvalidFrontMatter, *f.Date)
		}
		fm.Date = &d
	}
	fm.TimeToRead = f.TimeToRead
	for _, s := range f.Styles {
		if s = strings.TrimSpace(s); s != "" {
			fm.Styles = append(fm.Styles, s)
		}
	}
	return fm, nil
}
