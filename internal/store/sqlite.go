// Package store writes graph snapshots to SQLite for tools that prefer a
// single file over CSV.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agenthands/waygraph/internal/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	processed  INTEGER NOT NULL,
	added      INTEGER NOT NULL,
	updated    INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	errored    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	lat  REAL NOT NULL,
	lon  REAL NOT NULL,
	type TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS edges (
	from_id         INTEGER NOT NULL,
	to_id           INTEGER NOT NULL,
	distance_meters REAL NOT NULL,
	speed_kph       REAL NOT NULL,
	undirected      INTEGER NOT NULL,
	way_class       TEXT NOT NULL DEFAULT '',
	way_id          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_edges_pair ON edges(from_id, to_id);
CREATE TABLE IF NOT EXISTS merge_report (
	run_id  TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	action  TEXT NOT NULL,
	id      INTEGER NOT NULL,
	name    TEXT NOT NULL,
	lat     REAL NOT NULL,
	lon     REAL NOT NULL,
	type    TEXT NOT NULL,
	details TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Snapshot is everything one run produced. Nodes always replace the stored
// set; Edges replace the stored edges only when non-nil.
type Snapshot struct {
	Kind    string
	Summary model.RunSummary
	Nodes   []model.Node
	Edges   []model.Edge
	Report  []model.ReportEntry
}

type SQLiteStore struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored node and edge tables with snap and
// appends its run and report rows, in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sum := snap.Summary
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, kind, created_at, processed, added, updated, skipped, errored)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, snap.Kind, time.Now().UTC().Format(time.RFC3339), sum.Processed, sum.Added, sum.Updated, sum.Skipped, sum.Errored,
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, name, lat, lon, type) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	for _, n := range snap.Nodes {
		if _, err = nodeStmt.ExecContext(ctx, n.ID, n.Name, n.Lat, n.Lon, n.Type); err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
		}
	}

	// a nil edge set leaves the stored edges in place
	if snap.Edges != nil {
		if err = s.replaceEdges(ctx, tx, snap.Edges); err != nil {
			return err
		}
	}

	for i, r := range snap.Report {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO merge_report (run_id, seq, action, id, name, lat, lon, type, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, i, string(r.Action), r.NodeID, r.Name, r.Lat, r.Lon, r.Type, r.Details,
		); err != nil {
			return fmt.Errorf("failed to insert report row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) replaceEdges(ctx context.Context, tx *sql.Tx, edges []model.Edge) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO edges (from_id, to_id, distance_meters, speed_kph, undirected, way_class, way_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.FromID, e.ToID, e.DistanceMeters, e.SpeedKph, e.Undirected, e.WayClass, e.WayID); err != nil {
			return fmt.Errorf("failed to insert edge %d-%d: %w", e.FromID, e.ToID, err)
		}
	}
	return nil
}

// LoadNodes returns the stored node set ordered by id.
func (s *SQLiteStore) LoadNodes(ctx context.Context) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, lat, lon, type FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		var n model.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.Lat, &n.Lon, &n.Type); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// LoadEdges returns the stored edges ordered by (from_id, to_id).
func (s *SQLiteStore) LoadEdges(ctx context.Context) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, distance_meters, speed_kph, undirected, way_class, way_id FROM edges ORDER BY from_id, to_id, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.DistanceMeters, &e.SpeedKph, &e.Undirected, &e.WayClass, &e.WayID); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ReportRows returns the number of report rows stored for a run.
func (s *SQLiteStore) ReportRows(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM merge_report WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count report rows: %w", err)
	}
	return n, nil
}
