// Package memtree provides a mutable in-memory tree that implements
// espalier.Adapter. It is the reference source for hosts, benchmarks,
// and tests: mutators announce themselves through the attached updater,
// so a model mirroring the tree stays current without manual update
// bracketing at every call site.
package memtree

import (
	"errors"

	"github.com/tamlin/espalier"
)

var (
	// ErrCycle is returned by Move when the destination parent lies
	// inside the moved node's own subtree.
	ErrCycle = errors.New("memtree: move target inside moved subtree")
)

// Node is one entry of the tree. Nodes are created through Tree mutators
// and serve directly as espalier items.
type Node struct {
	label    string
	parent   *Node
	children []*Node
}

// Label returns the node's display label.
func (n *Node) Label() string { return n.label }

func (n *Node) String() string { return n.label }

// Tree is a mutable in-memory hierarchy. The zero value is empty and
// usable; New seeds top-level nodes. Tree is not safe for concurrent
// use, matching the single-goroutine ownership of the mirroring model.
type Tree struct {
	roots   []*Node
	updater espalier.Updater
}

var (
	_ espalier.Adapter      = (*Tree)(nil)
	_ espalier.UpdaterAware = (*Tree)(nil)
)

// New builds a tree with one top-level node per label.
func New(labels ...string) *Tree {
	t := &Tree{}
	for _, l := range labels {
		t.roots = append(t.roots, &Node{label: l})
	}
	return t
}

// AttachUpdater wires the updater that mutators bracket themselves with.
func (t *Tree) AttachUpdater(u espalier.Updater) { t.updater = u }

// kids returns the child slice the item addresses; a nil item addresses
// the top level.
func (t *Tree) kids(item espalier.Item) []*Node {
	if item == nil {
		return t.roots
	}
	return item.(*Node).children
}

func (t *Tree) setKids(parent *Node, kids []*Node) {
	if parent == nil {
		t.roots = kids
		return
	}
	parent.children = kids
}

// ============================================================================
// Adapter surface
// ============================================================================

func (t *Tree) HasChildren(item espalier.Item) bool {
	return len(t.kids(item)) > 0
}

func (t *Tree) ChildCount(item espalier.Item) int {
	return len(t.kids(item))
}

func (t *Tree) ChildAt(item espalier.Item, pos int) espalier.Item {
	return t.kids(item)[pos]
}

func (t *Tree) ParentOf(item espalier.Item) espalier.Item {
	n := item.(*Node)
	if n.parent == nil {
		return nil // top-level; an untyped nil is the root marker
	}
	return n.parent
}

func (t *Tree) IndexOf(parent, item espalier.Item, from int) int {
	kids := t.kids(parent)
	for i := from; i < len(kids); i++ {
		if kids[i] == item {
			return i
		}
	}
	return -1
}

func (t *Tree) Value(item espalier.Item, role espalier.Role) any {
	if role == espalier.RoleDisplay {
		return item.(*Node).label
	}
	return nil
}

// ============================================================================
// Mutators
// ============================================================================

// bracket runs fn inside one update cycle when an updater is attached.
func (t *Tree) bracket(fn func()) {
	if t.updater == nil {
		fn()
		return
	}
	t.updater.BeginUpdate()
	defer t.updater.EndUpdate()
	fn()
}

// Batch runs fn as a single update cycle, so any number of mutations
// inside reconcile as one pass. Batches nest.
func (t *Tree) Batch(fn func()) { t.bracket(fn) }

// Add appends a node labeled label under parent (nil for the top level)
// and returns it.
func (t *Tree) Add(parent *Node, label string) *Node {
	return t.InsertAt(parent, len(t.kids(asItem(parent))), label)
}

// InsertAt inserts a node labeled label at pos under parent (nil for the
// top level), clamping pos into range, and returns it.
func (t *Tree) InsertAt(parent *Node, pos int, label string) *Node {
	n := &Node{label: label, parent: parent}
	t.bracket(func() {
		kids := t.kids(asItem(parent))
		if pos < 0 {
			pos = 0
		}
		if pos > len(kids) {
			pos = len(kids)
		}
		kids = append(kids[:pos:pos], append([]*Node{n}, kids[pos:]...)...)
		t.setKids(parent, kids)
	})
	return n
}

// Remove detaches n and its subtree from the tree. Removing a node that
// is no longer attached is a no-op.
func (t *Tree) Remove(n *Node) {
	pos := t.IndexOf(asItem(n.parent), n, 0)
	if pos < 0 {
		return
	}
	t.bracket(func() {
		kids := t.kids(asItem(n.parent))
		t.setKids(n.parent, append(kids[:pos:pos], kids[pos+1:]...))
		n.parent = nil
	})
}

// Move re-homes n under newParent (nil for the top level) at pos, where
// pos addresses the destination slice after n's removal. Moving a node
// into its own subtree fails with ErrCycle.
func (t *Tree) Move(n, newParent *Node, pos int) error {
	for p := newParent; p != nil; p = p.parent {
		if p == n {
			return ErrCycle
		}
	}
	t.bracket(func() {
		if old := t.IndexOf(asItem(n.parent), n, 0); old >= 0 {
			kids := t.kids(asItem(n.parent))
			t.setKids(n.parent, append(kids[:old:old], kids[old+1:]...))
		}
		n.parent = newParent
		kids := t.kids(asItem(newParent))
		if pos < 0 {
			pos = 0
		}
		if pos > len(kids) {
			pos = len(kids)
		}
		kids = append(kids[:pos:pos], append([]*Node{n}, kids[pos:]...)...)
		t.setKids(newParent, kids)
	})
	return nil
}

// Rename relabels n. The change surfaces to consumers through the
// cycle's closing RefreshAll rather than a structural bracket.
func (t *Tree) Rename(n *Node, label string) {
	t.bracket(func() { n.label = label })
}

// asItem avoids handing the model a typed-nil item for the top level.
func asItem(n *Node) espalier.Item {
	if n == nil {
		return nil
	}
	return n
}
