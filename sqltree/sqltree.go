package sqltree

import (
	"database/sql"
	"errors"

	"github.com/tamlin/espalier"
)

// Adapter surface. Query failures are logged and answered neutrally; the
// mirroring model treats the source as momentarily empty rather than
// crashing.

func (t *Tree) HasChildren(item espalier.Item) bool {
	var exists bool
	err := t.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM nodes WHERE parent_id IS ?)`,
		parentArg(item)).Scan(&exists)
	if err != nil {
		t.log.Error("sqltree: has-children query failed", "err", err)
		return false
	}
	return exists
}

func (t *Tree) ChildCount(item espalier.Item) int {
	var count int
	err := t.db.QueryRow(
		`SELECT COUNT(*) FROM nodes WHERE parent_id IS ?`,
		parentArg(item)).Scan(&count)
	if err != nil {
		t.log.Error("sqltree: child-count query failed", "err", err)
		return 0
	}
	return count
}

func (t *Tree) ChildAt(item espalier.Item, pos int) espalier.Item {
	var id int64
	err := t.db.QueryRow(
		`SELECT id FROM nodes WHERE parent_id IS ? ORDER BY pos LIMIT 1 OFFSET ?`,
		parentArg(item), pos).Scan(&id)
	if err != nil {
		t.log.Error("sqltree: child-at query failed", "pos", pos, "err", err)
		return int64(0) // no such row id; the next pass drops it
	}
	return id
}

func (t *Tree) ParentOf(item espalier.Item) espalier.Item {
	var parent sql.NullInt64
	err := t.db.QueryRow(
		`SELECT parent_id FROM nodes WHERE id = ?`,
		item.(int64)).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return item // deleted row: self-parent marks it detached
	}
	if err != nil {
		t.log.Error("sqltree: parent query failed", "err", err)
		return item
	}
	if !parent.Valid {
		return nil // top-level
	}
	return parent.Int64
}

// IndexOf relies on pos being dense per parent, so the stored pos is also
// the sibling ordinal.
func (t *Tree) IndexOf(parent, item espalier.Item, from int) int {
	var pos int
	err := t.db.QueryRow(
		`SELECT pos FROM nodes WHERE id = ? AND parent_id IS ?`,
		item.(int64), parentArg(parent)).Scan(&pos)
	if err != nil {
		return -1
	}
	if pos < from {
		return -1
	}
	return pos
}

func (t *Tree) Value(item espalier.Item, role espalier.Role) any {
	if item == nil {
		return nil
	}
	id := item.(int64)
	switch role {
	case RoleLabel:
		var label string
		err := t.db.QueryRow(`SELECT label FROM nodes WHERE id = ?`, id).Scan(&label)
		if err != nil {
			return nil
		}
		return label
	case RoleID:
		return id
	}
	return nil
}
