package models

import "time"

// FrontMatter is the structured metadata at the head of a document.
type FrontMatter struct {
	Title      string
	Date       *time.Time
	TimeToRead *string
	// Styles lists style chunks requested explicitly by the document.
	Styles []string
}

// Document is a parsed content source.
type Document struct {
	ID     NodeID
	Path   string // relative to the source root, slash separated
	Front  FrontMatter
	Body   []byte
	Hash   string
	IsKeep bool
}

// OutputPath returns where the rendered page is written, relative to the
// output root.
func (d *Document) OutputPath() string {
	return PageOutputPath(d.Path)
}

// PageOutputPath maps a source-relative markdown path to its html path.
func PageOutputPath(rel string) string {
	rel = cleanRel(rel)
	if n := len(rel); n > 3 && rel[n-3:] == ".md" {
		rel = rel[:n-3]
	}
	return rel + ".html"
}

// PageURL returns the site-absolute URL of a page.
func PageURL(rel string) string {
	return "/" + PageOutputPath(rel)
}
