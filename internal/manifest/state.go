package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/models"
)

// Record is the persisted state of one node.
type Record struct {
	ID     models.NodeID
	Kind   models.NodeKind
	Hash   string
	Output string // empty for nodes without their own output file
	Edges  []models.Edge
}

// State is the manifest of one build: the records of every used node.
type State struct {
	Records map[models.NodeID]*Record
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Records: make(map[models.NodeID]*Record)}
}

// Get returns the record for id, or nil.
func (s *State) Get(id models.NodeID) *Record {
	return s.Records[id]
}

// Put stores r, replacing any previous record for the same node.
func (s *State) Put(r *Record) {
	s.Records[r.ID] = r
}

// Outputs returns the set of output paths recorded in the state.
func (s *State) Outputs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Records))
	for _, r := range s.Records {
		if r.Output != "" {
			out[r.Output] = struct{}{}
		}
	}
	return out
}

// Run is one build run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Pages      int
	Assets     int
	Failures   int
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Load reads the state committed by the last successful run. An empty
// database yields an empty state.
func (db *DB) Load(ctx context.Context) (*State, error) {
	st := NewState()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, kind, hash, output FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("manifest: load nodes: %w", err)
	}
	for rows.Next() {
		var r Record
		var id, kind string
		if err := rows.Scan(&id, &kind, &r.Hash, &r.Output); err != nil {
			rows.Close()
			return nil, fmt.Errorf("manifest: scan node: %w", err)
		}
		r.ID = models.NodeID(id)
		r.Kind = models.NodeKind(kind)
		st.Put(&r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: load nodes: %w", err)
	}

	erows, err := db.conn.QueryContext(ctx, `SELECT source, target, kind FROM edges ORDER BY source, pos`)
	if err != nil {
		return nil, fmt.Errorf("manifest: load edges: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var src, target, kind string
		if err := erows.Scan(&src, &target, &kind); err != nil {
			return nil, fmt.Errorf("manifest: scan edge: %w", err)
		}
		r := st.Get(models.NodeID(src))
		if r == nil {
			continue
		}
		r.Edges = append(r.Edges, models.Edge{Target: models.NodeID(target), Kind: models.EdgeKind(kind)})
	}
	return st, erows.Err()
}

// Commit replaces the stored state with st and records run, in a single
// transaction.
func (db *DB) Commit(ctx context.Context, st *State, run Run) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return fmt.Errorf("manifest: clear edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return fmt.Errorf("manifest: clear nodes: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, kind, hash, output) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (source, target, kind, pos) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("manifest: prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, r := range st.Records {
		if _, err := nodeStmt.ExecContext(ctx, string(r.ID), string(r.Kind), r.Hash, r.Output); err != nil {
			return fmt.Errorf("manifest: insert node %s: %w", r.ID, err)
		}
		for i, e := range r.Edges {
			if _, err := edgeStmt.ExecContext(ctx, string(r.ID), string(e.Target), string(e.Kind), i); err != nil {
				return fmt.Errorf("manifest: insert edge %s: %w", r.ID, err)
			}
		}
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordRun stores a run without touching the node state. It is used for
// failed runs.
func (db *DB) RecordRun(ctx context.Context, run Run) error {
	return insertRun(ctx, db.conn, run)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRun(ctx context.Context, ex execer, run Run) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, status, pages, assets, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, run.Pages, run.Assets, run.Failures)
	if err != nil {
		return fmt.Errorf("manifest: insert run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run, or nil when none was recorded.
func (db *DB) LastRun(ctx context.Context) (*Run, error) {
	var r Run
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, pages, assets, failures
		FROM runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Pages, &r.Assets, &r.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: last run: %w", err)
	}
	return &r, nil
}
