// Package graph holds the dependency graph of a build: pages, assets, style
// chunks and fonts connected by link and embed edges.
//
// The graph is discovered lazily. Discover walks it breadth-first from the
// roots, asking an Expander for each node's outgoing edges exactly once, so
// cycles between pages are harmless. Plan then derives the set of nodes that
// must be rebuilt.
package graph

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/models"
)

// Node is one vertex of the graph.
type Node struct {
	ID   models.NodeID
	Kind models.NodeKind
	// Hash is the content hash computed during discovery.
	Hash  string
	Edges []models.Edge
	// Reachable is set for every node connected to a root.
	Reachable bool
	// Dirty marks nodes that must be rebuilt this run.
	Dirty bool
	// KeepOnly marks the keep root, which is rendered but never emitted.
	KeepOnly bool
	// Err is the expansion error, if any. Failed nodes have no edges.
	Err error
}

// Used reports whether the node is part of the output.
func (n *Node) Used() bool {
	return n.Reachable && !n.KeepOnly
}

// Expansion is the result of expanding one node.
type Expansion struct {
	Hash  string
	Edges []models.Edge
}

// Expander computes the hash and outgoing edges of a node. It may be called
// concurrently for different nodes.
type Expander func(ctx context.Context, id models.NodeID) (Expansion, error)

// Graph is a directed graph keyed by node identity. It is not safe for
// concurrent mutation; Discover serializes its own updates.
type Graph struct {
	nodes map[models.NodeID]*Node
	order []models.NodeID // insertion order
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[models.NodeID]*Node)}
}

// Add inserts a node if it is not present and returns it.
func (g *Graph) Add(id models.NodeID) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Kind: models.KindOf(id)}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// Node returns a node by identity.
func (g *Graph) Node(id models.NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// SetEdges replaces the outgoing edges of id, dropping duplicates and
// self-loops. Target nodes are created as needed.
func (g *Graph) SetEdges(id models.NodeID, edges []models.Edge) {
	n := g.Add(id)
	n.Edges = n.Edges[:0]
	seen := make(map[models.Edge]struct{}, len(edges))
	for _, e := range edges {
		if e.Target == id {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		n.Edges = append(n.Edges, e)
		g.Add(e.Target)
	}
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Discover expands the graph from roots in breadth-first waves. The nodes of
// one wave are expanded concurrently, at most limit at a time; the graph
// itself is only touched between waves. Expansion errors are stored on the
// node and do not stop discovery of other nodes. The first root is the entry
// point; keep, when non-empty, is marked KeepOnly.
func (g *Graph) Discover(ctx context.Context, roots []models.NodeID, keep models.NodeID, limit int, expand Expander) error {
	if limit <= 0 {
		limit = 1
	}
	visited := make(map[models.NodeID]bool)
	var wave []models.NodeID
	for _, r := range roots {
		if r == "" || visited[r] {
			continue
		}
		visited[r] = true
		wave = append(wave, r)
		g.Add(r)
	}
	if keep != "" {
		if n, ok := g.nodes[keep]; ok {
			n.KeepOnly = true
		}
	}

	for len(wave) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		results := make([]Expansion, len(wave))
		errs := make([]error, len(wave))

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(limit)
		for i, id := range wave {
			eg.Go(func() error {
				results[i], errs[i] = expand(egCtx, id)
				return nil
			})
		}
		_ = eg.Wait()

		var next []models.NodeID
		for i, id := range wave {
			n := g.nodes[id]
			if errs[i] != nil {
				n.Err = errs[i]
				g.SetEdges(id, nil)
				continue
			}
			n.Hash = results[i].Hash
			g.SetEdges(id, results[i].Edges)
			for _, e := range n.Edges {
				if visited[e.Target] {
					continue
				}
				visited[e.Target] = true
				next = append(next, e.Target)
			}
		}
		wave = next
	}

	g.Reach(roots...)
	return ctx.Err()
}

// Reach marks every node connected to roots as reachable and returns them in
// breadth-first order. Previously reachable nodes not connected to roots are
// cleared.
func (g *Graph) Reach(roots ...models.NodeID) []models.NodeID {
	for _, n := range g.nodes {
		n.Reachable = false
	}
	var out []models.NodeID
	queue := make([]models.NodeID, 0, len(roots))
	for _, r := range roots {
		n, ok := g.nodes[r]
		if !ok || n.Reachable {
			continue
		}
		n.Reachable = true
		queue = append(queue, r)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, e := range g.nodes[id].Edges {
			t := g.nodes[e.Target]
			if t.Reachable {
				continue
			}
			t.Reachable = true
			queue = append(queue, e.Target)
		}
	}
	return out
}

// Embedders returns the reachable nodes that embed id.
func (g *Graph) Embedders(id models.NodeID) []models.NodeID {
	var out []models.NodeID
	for _, src := range g.order {
		n := g.nodes[src]
		if !n.Reachable {
			continue
		}
		for _, e := range n.Edges {
			if e.Target == id && e.Kind == models.EdgeEmbed {
				out = append(out, src)
				break
			}
		}
	}
	return out
}

// MarkDirty seeds dirtiness from changed and propagates it backwards along
// embed edges: a node is dirty when it changed or embeds a dirty node, at any
// depth. Only reachable nodes are considered. Link edges never propagate.
func (g *Graph) MarkDirty(changed func(*Node) bool) {
	rev := make(map[models.NodeID][]models.NodeID)
	var queue []models.NodeID
	for _, id := range g.order {
		n := g.nodes[id]
		n.Dirty = false
		if !n.Reachable {
			continue
		}
		for _, e := range n.Edges {
			if e.Kind == models.EdgeEmbed {
				rev[e.Target] = append(rev[e.Target], id)
			}
		}
	}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Reachable && changed(n) {
			n.Dirty = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, src := range rev[id] {
			s := g.nodes[src]
			if s.Dirty {
				continue
			}
			s.Dirty = true
			queue = append(queue, src)
		}
	}
}

// Plan returns the nodes to rebuild this run, sorted by identity. With force
// every reachable node is included; otherwise only dirty ones.
func (g *Graph) Plan(force bool) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if !n.Reachable {
			continue
		}
		if force || n.Dirty {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Failed returns the reachable nodes whose expansion failed, sorted by
// identity.
func (g *Graph) Failed() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Reachable && n.Err != nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Collector gathers edges from concurrent callers. Expanders use it while a
// page is rendered and every resolved reference adds one edge.
type Collector struct {
	mu    sync.Mutex
	edges []models.Edge
}

// Add records an edge.
func (c *Collector) Add(target models.NodeID, kind models.EdgeKind) {
	c.mu.Lock()
	c.edges = append(c.edges, models.Edge{Target: target, Kind: kind})
	c.mu.Unlock()
}

// Edges returns the recorded edges in insertion order.
func (c *Collector) Edges() []models.Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Edge(nil), c.edges...)
}
