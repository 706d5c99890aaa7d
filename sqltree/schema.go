// Package sqltree adapts an adjacency-list table in SQLite as an espalier
// data source. Items are int64 row ids; the sibling order is the stored
// pos column, which the package's mutators keep dense per parent.
package sqltree

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tamlin/espalier"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id INTEGER REFERENCES nodes(id) ON DELETE CASCADE,
	pos       INTEGER NOT NULL,
	label     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent_pos ON nodes(parent_id, pos);
`

// Top is the parent id addressing the top level (stored as NULL).
// SQLite row ids start at 1, so 0 is free to be the sentinel.
const Top int64 = 0

// Roles understood by Value.
const (
	// RoleLabel is the node's label.
	RoleLabel = espalier.RoleDisplay
	// RoleID is the node's row id (int64).
	RoleID espalier.Role = 1
)

// Options configures a Tree. The zero value is usable.
type Options struct {
	// Logger receives query diagnostics. May be nil.
	Logger *slog.Logger
}

// Tree adapts the nodes table. Adapter reads go straight to indexed
// queries; mutators run in transactions and announce themselves through
// the attached updater.
type Tree struct {
	db      *sql.DB
	log     *slog.Logger
	updater espalier.Updater
}

var (
	_ espalier.Adapter      = (*Tree)(nil)
	_ espalier.UpdaterAware = (*Tree)(nil)
)

// Open opens (or creates) the SQLite database at dsn and applies the
// schema. Foreign keys are enabled so deleting a node drops its subtree.
func Open(dsn string, opts Options) (*Tree, error) {
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqltree: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqltree: ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqltree: apply schema: %w", err)
	}
	t := &Tree{db: db, log: opts.Logger}
	if t.log == nil {
		t.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t, nil
}

// Close closes the underlying database.
func (t *Tree) Close() error {
	return t.db.Close()
}

// AttachUpdater wires the updater mutators bracket themselves with.
func (t *Tree) AttachUpdater(u espalier.Updater) { t.updater = u }

// parentArg converts an adapter item (or mutator parent id) into the
// value bound against `parent_id IS ?`: NULL addresses the top level.
func parentArg(item espalier.Item) any {
	if item == nil {
		return nil
	}
	return item.(int64)
}

func parentIDArg(parent int64) any {
	if parent == Top {
		return nil
	}
	return parent
}
