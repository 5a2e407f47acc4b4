package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"nodes", "edges", "runs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestLoadEmpty(t *testing.T) {
	st, err := testDB(t).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Records) != 0 {
		t.Errorf("records = %d, want 0", len(st.Records))
	}
}

func TestCommitRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	index := models.PageID("index.md")
	cat := models.AssetID("cat.png")
	global := models.StyleID("global")
	st := NewState()
	st.Put(&Record{
		ID: index, Kind: models.KindPage, Hash: "h1", Output: "index.html",
		Edges: []models.Edge{
			{Target: models.PageID("b.md"), Kind: models.EdgeLink},
			{Target: cat, Kind: models.EdgeEmbed},
			{Target: global, Kind: models.EdgeEmbed},
		},
	})
	st.Put(&Record{ID: cat, Kind: models.KindImage, Hash: "h2", Output: "assets/aaaa.webp"})
	st.Put(&Record{ID: global, Kind: models.KindStyleChunk, Hash: "h3"})

	start := time.Now().Add(-time.Second)
	run := Run{ID: uuid.NewString(), StartedAt: start, FinishedAt: time.Now(), Status: StatusSuccess, Pages: 1, Assets: 1}
	if err := db.Commit(ctx, st, run); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(got.Records))
	}
	r := got.Get(index)
	if r.Hash != "h1" || r.Output != "index.html" || r.Kind != models.KindPage {
		t.Errorf("index record = %+v", r)
	}
	if len(r.Edges) != 3 || r.Edges[0].Kind != models.EdgeLink || r.Edges[2].Target != global {
		t.Errorf("edges = %+v", r.Edges)
	}
	outs := got.Outputs()
	if _, ok := outs["assets/aaaa.webp"]; !ok || len(outs) != 2 {
		t.Errorf("outputs = %v", outs)
	}

	last, err := db.LastRun(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastRun: %v %v", last, err)
	}
	if last.ID != run.ID || last.Status != StatusSuccess || last.Pages != 1 {
		t.Errorf("last run = %+v", last)
	}
}

func TestCommitReplacesState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := NewState()
	first.Put(&Record{ID: models.PageID("old.md"), Kind: models.KindPage, Hash: "x", Output: "old.html"})
	if err := db.Commit(ctx, first, Run{ID: uuid.NewString(), Status: StatusSuccess}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second := NewState()
	second.Put(&Record{ID: models.PageID("new.md"), Kind: models.KindPage, Hash: "y", Output: "new.html"})
	if err := db.Commit(ctx, second, Run{ID: uuid.NewString(), Status: StatusSuccess}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Get(models.PageID("old.md")) != nil || got.Get(models.PageID("new.md")) == nil {
		t.Errorf("records = %v", got.Records)
	}
}

func TestRecordRunKeepsState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	st := NewState()
	st.Put(&Record{ID: models.PageID("a.md"), Kind: models.KindPage, Hash: "a", Output: "a.html"})
	if err := db.Commit(ctx, st, Run{ID: uuid.NewString(), StartedAt: time.Now().Add(-time.Minute), Status: StatusSuccess}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	failed := Run{ID: uuid.NewString(), StartedAt: time.Now(), FinishedAt: time.Now(), Status: StatusFailed, Failures: 2}
	if err := db.RecordRun(ctx, failed); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, _ := db.Load(ctx)
	if got.Get(models.PageID("a.md")) == nil {
		t.Error("failed run dropped committed state")
	}
	last, _ := db.LastRun(ctx)
	if last == nil || last.Status != StatusFailed || last.Failures != 2 {
		t.Errorf("last run = %+v", last)
	}
}
