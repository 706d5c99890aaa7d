package sqltree

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by mutators addressing an id with no row.
	ErrNotFound = errors.New("sqltree: node not found")

	// ErrCycle is returned by MoveTo when the destination parent lies
	// inside the moved node's own subtree.
	ErrCycle = errors.New("sqltree: move target inside moved subtree")
)

// bracket runs fn inside one update cycle when an updater is attached.
// The cycle closes even when fn fails; the resulting pass simply finds
// nothing changed.
func (t *Tree) bracket(fn func() error) error {
	if t.updater == nil {
		return fn()
	}
	t.updater.BeginUpdate()
	defer t.updater.EndUpdate()
	return fn()
}

// Insert adds a node labeled label at pos under parent (Top for the top
// level), clamping pos into range, and returns the new row id.
func (t *Tree) Insert(parent int64, pos int, label string) (int64, error) {
	var id int64
	err := t.bracket(func() error {
		tx, err := t.db.Begin()
		if err != nil {
			return fmt.Errorf("sqltree: begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // best-effort on failure path

		var count int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM nodes WHERE parent_id IS ?`,
			parentIDArg(parent)).Scan(&count); err != nil {
			return fmt.Errorf("sqltree: count siblings: %w", err)
		}
		pos = clamp(pos, count)

		if _, err := tx.Exec(
			`UPDATE nodes SET pos = pos + 1 WHERE parent_id IS ? AND pos >= ?`,
			parentIDArg(parent), pos); err != nil {
			return fmt.Errorf("sqltree: shift siblings: %w", err)
		}
		res, err := tx.Exec(
			`INSERT INTO nodes (parent_id, pos, label) VALUES (?, ?, ?)`,
			parentIDArg(parent), pos, label)
		if err != nil {
			return fmt.Errorf("sqltree: insert node: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqltree: last insert id: %w", err)
		}
		return tx.Commit()
	})
	return id, err
}

// Delete removes the node and, through the cascading foreign key, its
// whole subtree, closing the pos gap it leaves behind.
func (t *Tree) Delete(id int64) error {
	return t.bracket(func() error {
		tx, err := t.db.Begin()
		if err != nil {
			return fmt.Errorf("sqltree: begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		parent, pos, err := locate(tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqltree: delete node: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE nodes SET pos = pos - 1 WHERE parent_id IS ? AND pos > ?`,
			parent, pos); err != nil {
			return fmt.Errorf("sqltree: close gap: %w", err)
		}
		return tx.Commit()
	})
}

// MoveTo re-homes the node under newParent (Top for the top level) at
// pos, where pos addresses the destination order after the node's own
// slot is vacated. Moving a node into its own subtree fails with ErrCycle.
func (t *Tree) MoveTo(id, newParent int64, pos int) error {
	if err := t.guardCycle(id, newParent); err != nil {
		return err
	}
	return t.bracket(func() error {
		tx, err := t.db.Begin()
		if err != nil {
			return fmt.Errorf("sqltree: begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		oldParent, oldPos, err := locate(tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`UPDATE nodes SET pos = pos - 1 WHERE parent_id IS ? AND pos > ? AND id != ?`,
			oldParent, oldPos, id); err != nil {
			return fmt.Errorf("sqltree: close gap: %w", err)
		}

		var count int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM nodes WHERE parent_id IS ? AND id != ?`,
			parentIDArg(newParent), id).Scan(&count); err != nil {
			return fmt.Errorf("sqltree: count siblings: %w", err)
		}
		pos = clamp(pos, count)

		if _, err := tx.Exec(
			`UPDATE nodes SET pos = pos + 1 WHERE parent_id IS ? AND pos >= ? AND id != ?`,
			parentIDArg(newParent), pos, id); err != nil {
			return fmt.Errorf("sqltree: shift siblings: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE nodes SET parent_id = ?, pos = ? WHERE id = ?`,
			parentIDArg(newParent), pos, id); err != nil {
			return fmt.Errorf("sqltree: re-home node: %w", err)
		}
		return tx.Commit()
	})
}

// Rename relabels the node. The change surfaces to consumers through the
// cycle's closing RefreshAll.
func (t *Tree) Rename(id int64, label string) error {
	return t.bracket(func() error {
		res, err := t.db.Exec(`UPDATE nodes SET label = ? WHERE id = ?`, label, id)
		if err != nil {
			return fmt.Errorf("sqltree: rename: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("sqltree: rename %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// LabelOf reads a node's label.
func (t *Tree) LabelOf(id int64) (string, error) {
	var label string
	err := t.db.QueryRow(`SELECT label FROM nodes WHERE id = ?`, id).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqltree: label of %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("sqltree: label of %d: %w", id, err)
	}
	return label, nil
}

// guardCycle walks newParent's ancestor chain and rejects a move whose
// destination lies under the moved node. The visited set bounds the walk
// even over corrupted parent data.
func (t *Tree) guardCycle(id, newParent int64) error {
	visited := map[int64]struct{}{}
	for cur := newParent; cur != Top; {
		if cur == id {
			return ErrCycle
		}
		if _, seen := visited[cur]; seen {
			return ErrCycle
		}
		visited[cur] = struct{}{}

		var parent sql.NullInt64
		err := t.db.QueryRow(`SELECT parent_id FROM nodes WHERE id = ?`, cur).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqltree: move under %d: %w", newParent, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("sqltree: resolve ancestors: %w", err)
		}
		if !parent.Valid {
			return nil
		}
		cur = parent.Int64
	}
	return nil
}

// locate reads a node's parent binding and position inside a transaction.
// The parent comes back in bind-ready form (nil for the top level).
func locate(tx *sql.Tx, id int64) (parent any, pos int, err error) {
	var p sql.NullInt64
	err = tx.QueryRow(`SELECT parent_id, pos FROM nodes WHERE id = ?`, id).Scan(&p, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("sqltree: node %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqltree: locate %d: %w", id, err)
	}
	if !p.Valid {
		return nil, pos, nil
	}
	return p.Int64, pos, nil
}

func clamp(pos, count int) int {
	if pos < 0 {
		return 0
	}
	if pos > count {
		return count
	}
	return pos
}
