package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/raido/internal/models"
)

func link(id models.NodeID) models.Edge  { return models.Edge{Target: id, Kind: models.EdgeLink} }
func embed(id models.NodeID) models.Edge { return models.Edge{Target: id, Kind: models.EdgeEmbed} }

// static expands nodes from a fixed adjacency map and counts calls.
type static struct {
	edges map[models.NodeID][]models.Edge
	fail  map[models.NodeID]error
	calls atomic.Int32
}

func (s *static) expand(_ context.Context, id models.NodeID) (Expansion, error) {
	s.calls.Add(1)
	if err := s.fail[id]; err != nil {
		return Expansion{}, err
	}
	return Expansion{Hash: "h-" + string(id), Edges: s.edges[id]}, nil
}

var (
	index  = models.PageID("index.md")
	pageA  = models.PageID("a.md")
	pageB  = models.PageID("b.md")
	hidden = models.PageID("hidden.md")
	keep   = models.PageID("_keep.md")
	orphan = models.PageID("orphan.md")
	cat    = models.AssetID("cat.png")
	global = models.StyleID("global")
)

func TestDiscover_CyclesExpandOnce(t *testing.T) {
	s := &static{edges: map[models.NodeID][]models.Edge{
		index: {link(pageA)},
		pageA: {link(pageB), link(index)},
		pageB: {link(pageA), link(pageB)},
	}}
	g := New()
	require.NoError(t, g.Discover(context.Background(), []models.NodeID{index}, "", 4, s.expand))

	assert.Equal(t, int32(3), s.calls.Load())
	for _, id := range []models.NodeID{index, pageA, pageB} {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.True(t, n.Reachable, id)
		assert.Equal(t, "h-"+string(id), n.Hash)
	}
	b, _ := g.Node(pageB)
	assert.Equal(t, []models.Edge{link(pageA)}, b.Edges, "self loop dropped")
}

func TestDiscover_KeepRoot(t *testing.T) {
	s := &static{edges: map[models.NodeID][]models.Edge{
		index: {embed(global)},
		keep:  {link(hidden)},
	}}
	g := New()
	require.NoError(t, g.Discover(context.Background(), []models.NodeID{index, keep}, keep, 2, s.expand))

	k, _ := g.Node(keep)
	h, _ := g.Node(hidden)
	assert.True(t, k.Reachable)
	assert.False(t, k.Used())
	assert.True(t, h.Used())
}

func TestReach_UnreferencedDocumentDoesNotChangeSet(t *testing.T) {
	build := func(withOrphan bool) []models.NodeID {
		g := New()
		g.SetEdges(index, []models.Edge{link(pageA), embed(cat)})
		g.SetEdges(pageA, []models.Edge{link(index)})
		if withOrphan {
			g.SetEdges(orphan, []models.Edge{link(index), embed(cat)})
		}
		return g.Reach(index)
	}
	assert.ElementsMatch(t, build(false), build(true))
	assert.NotContains(t, build(true), orphan)
}

func TestDiscover_ErrorsAreRecordedPerNode(t *testing.T) {
	boom := errors.New("boom")
	s := &static{
		edges: map[models.NodeID][]models.Edge{index: {link(pageA), link(pageB)}},
		fail:  map[models.NodeID]error{pageA: boom},
	}
	g := New()
	require.NoError(t, g.Discover(context.Background(), []models.NodeID{index}, "", 1, s.expand))

	failed := g.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, pageA, failed[0].ID)
	assert.ErrorIs(t, failed[0].Err, boom)
	b, _ := g.Node(pageB)
	assert.NoError(t, b.Err)
}

func TestDiscover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &static{}
	err := New().Discover(ctx, []models.NodeID{index}, "", 1, s.expand)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.calls.Load())
}

func TestMarkDirty_PropagatesAlongEmbedOnly(t *testing.T) {
	font := models.FontFileID("https://fonts.example/a.woff2")
	sheet := models.FontStylesheetID("https://fonts.example/css")

	g := New()
	g.SetEdges(index, []models.Edge{link(pageA), embed(global)})
	g.SetEdges(pageA, []models.Edge{link(index), embed(cat)})
	g.SetEdges(pageB, []models.Edge{link(pageA)})
	g.SetEdges(global, []models.Edge{embed(sheet)})
	g.SetEdges(sheet, []models.Edge{embed(font)})
	g.Reach(index, pageB)

	g.MarkDirty(func(n *Node) bool { return n.ID == cat })
	assert.Equal(t, []models.NodeID{cat, pageA}, ids(g.Plan(false)))

	g.MarkDirty(func(n *Node) bool { return n.ID == font })
	assert.Equal(t, []models.NodeID{sheet, font, index, global}, ids(g.Plan(false)))
}

func TestMarkDirty_Cycle(t *testing.T) {
	g := New()
	g.SetEdges(pageA, []models.Edge{embed(pageB)})
	g.SetEdges(pageB, []models.Edge{embed(pageA)})
	g.Reach(pageA)
	g.MarkDirty(func(n *Node) bool { return n.ID == pageB })
	assert.Len(t, g.Plan(false), 2)
}

func TestPlan_ForceIncludesAllReachable(t *testing.T) {
	g := New()
	g.SetEdges(index, []models.Edge{link(pageA)})
	g.SetEdges(orphan, nil)
	g.Reach(index)
	g.MarkDirty(func(*Node) bool { return false })

	assert.Empty(t, g.Plan(false))
	assert.Equal(t, []models.NodeID{pageA, index}, ids(g.Plan(true)))
}

func TestEmbedders(t *testing.T) {
	g := New()
	g.SetEdges(index, []models.Edge{embed(cat), link(pageA)})
	g.SetEdges(pageA, []models.Edge{embed(cat)})
	g.SetEdges(orphan, []models.Edge{embed(cat)})
	g.Reach(index)
	assert.Equal(t, []models.NodeID{index, pageA}, g.Embedders(cat))
	assert.Empty(t, g.Embedders(pageA))
}

func TestCollector(t *testing.T) {
	var c Collector
	c.Add(pageA, models.EdgeLink)
	c.Add(cat, models.EdgeEmbed)
	assert.Equal(t, []models.Edge{link(pageA), embed(cat)}, c.Edges())
}

func ids(nodes []*Node) []models.NodeID {
	out := make([]models.NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
