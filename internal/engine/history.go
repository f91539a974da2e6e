// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/invowk/grab/pkg/depspec"
)

// HistoryFileName is the grab index kept in the cache directory.
const HistoryFileName = "history.db"

const historySchema = `
CREATE TABLE IF NOT EXISTS grabs (
	grp        TEXT NOT NULL,
	module     TEXT NOT NULL,
	version    TEXT NOT NULL,
	repository TEXT NOT NULL,
	uri        TEXT NOT NULL,
	grabbed_at INTEGER NOT NULL,
	PRIMARY KEY (grp, module, version)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_grabs_module ON grabs(grp, module);
`

type (
	// History indexes every artifact the engine resolved, across runs.
	History struct {
		db *sql.DB
	}

	// HistoryEntry is one row of the index.
	HistoryEntry struct {
		Coordinates depspec.Coordinates
		Repository  string
		URI         string
		GrabbedAt   time.Time
	}
)

// OpenHistory opens (creating if needed) the sqlite index at path.
// ":memory:" gives a private in-memory index.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared between calls
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record upserts e.
func (h *History) Record(ctx context.Context, e HistoryEntry) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO grabs (grp, module, version, repository, uri, grabbed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (grp, module, version) DO UPDATE SET
			repository = excluded.repository,
			uri        = excluded.uri,
			grabbed_at = excluded.grabbed_at`,
		e.Coordinates.Group, e.Coordinates.Module, e.Coordinates.Version,
		e.Repository, e.URI, e.GrabbedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Coordinates, err)
	}
	return nil
}

// Modules groups the index as {"group:module": versions}, newest first.
func (h *History) Modules(ctx context.Context) (map[string][]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT grp, module, version FROM grabs ORDER BY grp, module`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var grp, module, version string
		if err := rows.Scan(&grp, &module, &version); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		key := grp + ":" + module
		out[key] = append(out[key], version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	for k, vs := range out {
		out[k] = sortVersions(vs)
	}
	return out, nil
}

// Entries returns every row, most recent first.
func (h *History) Entries(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT grp, module, version, repository, uri, grabbed_at FROM grabs ORDER BY grabbed_at DESC, grp, module`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e  HistoryEntry
			ms int64
		)
		if err := rows.Scan(&e.Coordinates.Group, &e.Coordinates.Module, &e.Coordinates.Version, &e.Repository, &e.URI, &ms); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.GrabbedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (h *History) Close() error {
	return h.db.Close()
}
