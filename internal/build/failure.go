package build

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/multierr"

	"github.com/starford/raido/internal/apperr"
)

// Failure is returned by Run when at least one node failed. It wraps every
// node error, so errors.Is matches any of the taxonomy sentinels.
type Failure struct {
	Err error
}

func (f *Failure) Error() string {
	nodes := f.Nodes()
	return fmt.Sprintf("build: %d node(s) failed: %v", len(nodes), f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Nodes returns the per-node errors sorted by node identity.
func (f *Failure) Nodes() []*apperr.NodeError {
	var out []*apperr.NodeError
	for _, err := range multierr.Errors(f.Err) {
		var ne *apperr.NodeError
		if errors.As(err, &ne) {
			out = append(out, ne)
			continue
		}
		out = append(out, &apperr.NodeError{Node: "?", Err: err})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// WriteSummary renders a table of every failed node with its error kind.
func (f *Failure) WriteSummary(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Build failed")
	t.AppendHeader(table.Row{"Node", "Kind", "Error"})
	for _, ne := range f.Nodes() {
		t.AppendRow(table.Row{ne.Node, ne.Kind(), ne.Err.Error()})
	}
	t.AppendFooter(table.Row{"", "Total", len(f.Nodes())})
	t.Render()
}
