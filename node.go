package espalier

// node is one entry in the mirrored tree. Children are owned exclusively
// by their parent; the parent link is a non-owning back-reference. The
// synthetic root node carries a nil item and is never exposed through a
// valid NodeRef.
type node struct {
	parent   *node
	item     Item
	row      int // position within parent.children, re-stamped on every splice
	children []*node

	// loaded is true exactly when children mirror the adapter's order as
	// of the last load or sync pass that touched this node.
	loaded bool

	// Cheap-check cache. hasChildren holds the adapter's has-children
	// answer observed while the node was still unloaded; it is only
	// meaningful once askedHasChildren is set. A later disagreement with
	// the adapter's current answer forces materialization on the next
	// sync touch.
	askedHasChildren bool
	hasChildren      bool

	// gone marks subtrees detached by a splice so that handles issued
	// before the removal resolve as invalid.
	gone bool
}

// newChild creates an unmaterialized node at the given row under parent.
func newChild(parent *node, item Item, row int) *node {
	return &node{parent: parent, item: item, row: row}
}

// loadChildren materializes every child of n in adapter order. No-op when
// the node is already loaded. The cheap predicate gates the enumeration so
// empty nodes never pay for a count.
func (n *node) loadChildren(a Adapter) {
	if n.loaded {
		return
	}
	if a.HasChildren(n.item) {
		count := a.ChildCount(n.item)
		n.children = make([]*node, 0, count)
		for k := 0; k < count; k++ {
			n.children = append(n.children, newChild(n, a.ChildAt(n.item, k), k))
		}
	}
	n.loaded = true
}

// childCount loads children on demand and reports how many there are.
func (n *node) childCount(a Adapter) int {
	n.loadChildren(a)
	return len(n.children)
}

// removeRange splices out children [begin, end), marks the detached
// subtrees gone, and re-stamps rows from begin onward.
func (n *node) removeRange(begin, end int) {
	for _, c := range n.children[begin:end] {
		c.detach()
	}
	n.children = append(n.children[:begin], n.children[end:]...)
	for i := begin; i < len(n.children); i++ {
		n.children[i].row = i
	}
}

// insertRange splices batch in at position at and re-stamps rows from at
// to the end.
func (n *node) insertRange(at int, batch []*node) {
	n.children = append(n.children[:at], append(batch, n.children[at:]...)...)
	for i := at; i < len(n.children); i++ {
		n.children[i].row = i
	}
}

// detach marks n and its whole subtree as removed from the tree.
func (n *node) detach() {
	n.gone = true
	for _, c := range n.children {
		c.detach()
	}
}

// lazilyConsistent reports whether n may keep deferring materialization:
// its children are loaded, or the cheap predicate was never queried, or
// the adapter's current cheap answer still matches the cached one. A flip
// means the consumer has been told a has-children answer that no longer
// holds, and only a materializing sync touch can correct it.
func (n *node) lazilyConsistent(a Adapter) bool {
	if n.loaded || !n.askedHasChildren {
		return true
	}
	return n.hasChildren == a.HasChildren(n.item)
}
