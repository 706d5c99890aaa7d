package espalier

// NodeRef addresses one node in the mirrored tree as a (row, column,
// identity) triple. The zero NodeRef is invalid; passed as a parent
// argument it denotes the synthetic root, returned as a result it means
// "no such node". A ref goes stale when its node is removed from the tree
// or re-stamped to a different row; stale refs resolve to neutral results
// everywhere.
type NodeRef struct {
	row    int
	column int
	node   *node
}

// IsValid reports whether the ref was issued for an actual node. Validity
// does not survive removal or repositioning of the node; use the model's
// operations, which re-check, rather than caching the answer.
func (r NodeRef) IsValid() bool {
	return r.node != nil
}

// Row returns the sibling position encoded in the ref, or -1 when invalid.
func (r NodeRef) Row() int {
	if r.node == nil {
		return -1
	}
	return r.row
}

// Column returns the column encoded in the ref, or -1 when invalid.
func (r NodeRef) Column() int {
	if r.node == nil {
		return -1
	}
	return r.column
}

// nodeOf resolves a handle to its cached node. The zero ref resolves to
// the synthetic root; refs to removed or repositioned nodes resolve to
// nil.
func (m *Model) nodeOf(ref NodeRef) *node {
	if ref.node == nil {
		return m.root
	}
	if ref.node.gone || ref.node.row != ref.row {
		return nil
	}
	return ref.node
}

// refOf builds the current handle for a cached node. The root (and nil)
// map to the zero ref.
func (m *Model) refOf(n *node) NodeRef {
	if n == nil || n.parent == nil {
		return NodeRef{}
	}
	return NodeRef{row: n.row, node: n}
}

// Index returns the handle of the row-th child of parent, loading the
// parent's children on demand. Out-of-range rows, columns other than 0,
// and stale parents yield the invalid ref.
func (m *Model) Index(row, column int, parent NodeRef) NodeRef {
	if row < 0 || column != 0 {
		return NodeRef{}
	}
	n := m.nodeOf(parent)
	if n == nil {
		return NodeRef{}
	}
	if !m.syncing {
		n.loadChildren(m.adapter)
	}
	if row >= len(n.children) {
		return NodeRef{}
	}
	return m.refOf(n.children[row])
}

// Parent returns the handle of ref's parent, or the invalid ref for
// top-level nodes and stale inputs.
func (m *Model) Parent(ref NodeRef) NodeRef {
	if !ref.IsValid() {
		return NodeRef{}
	}
	n := m.nodeOf(ref)
	if n == nil {
		return NodeRef{}
	}
	return m.refOf(n.parent)
}

// ChildCount returns the number of children under parent, loading them on
// demand. During a sync pass it answers from the cache, so sink callbacks
// inside notification brackets observe counts consistent with the
// announced ranges.
func (m *Model) ChildCount(parent NodeRef) int {
	n := m.nodeOf(parent)
	if n == nil {
		return 0
	}
	if m.syncing {
		return len(n.children)
	}
	return n.childCount(m.adapter)
}

// ColumnCount returns the number of value columns per node, which is
// always 1.
func (m *Model) ColumnCount(parent NodeRef) int {
	return 1
}

// HasChildren reports whether parent has at least one child without
// materializing them. The root always reports children. For unloaded
// nodes the adapter's cheap answer is cached; a later flip of that answer
// forces the next sync pass to materialize the node.
func (m *Model) HasChildren(parent NodeRef) bool {
	if parent.node == nil {
		return true
	}
	n := m.nodeOf(parent)
	if n == nil {
		return false
	}
	if n.loaded {
		return len(n.children) > 0
	}
	n.askedHasChildren = true
	n.hasChildren = m.adapter.HasChildren(n.item)
	return n.hasChildren
}

// Value returns the role facet of the item behind ref. Reads are neutral
// (nil) while an update cycle is open and for invalid or stale refs.
func (m *Model) Value(ref NodeRef, role Role) any {
	if m.updating > 0 || !ref.IsValid() {
		return nil
	}
	n := m.nodeOf(ref)
	if n == nil {
		return nil
	}
	return m.adapter.Value(n.item, role)
}

// ItemOf returns the source item behind ref, or nil for invalid and
// stale refs.
func (m *Model) ItemOf(ref NodeRef) Item {
	if !ref.IsValid() {
		return nil
	}
	n := m.nodeOf(ref)
	if n == nil {
		return nil
	}
	return n.item
}

// RefOf resolves an item to its handle by walking ParentOf up to the root
// and descending back down with IndexOf, materializing the ancestor chain
// on the way. Items the adapter does not anchor under the root (detached
// items, items absent from their parent's children, malformed cyclic
// parent chains) yield the invalid ref.
func (m *Model) RefOf(item Item) NodeRef {
	if item == nil {
		return NodeRef{}
	}
	return m.refOf(m.resolveItem(item, make(map[Item]struct{})))
}

// resolveItem returns the cached node for item, or nil when the item does
// not resolve. visited holds the items already seen on the way up; a
// repeat means the adapter reported a parent cycle, which is a contract
// violation answered with a nil node rather than unbounded recursion.
func (m *Model) resolveItem(item Item, visited map[Item]struct{}) *node {
	if item == nil {
		return m.root
	}
	if _, seen := visited[item]; seen {
		m.log.Warn("resolve: parent cycle detected", "item", item)
		return nil
	}
	visited[item] = struct{}{}

	parentItem := m.adapter.ParentOf(item)
	if parentItem == item {
		// Self-parented items are detached by contract.
		return nil
	}
	parentNode := m.resolveItem(parentItem, visited)
	if parentNode == nil {
		return nil
	}
	pos := m.adapter.IndexOf(parentItem, item, 0)
	if pos < 0 {
		return nil
	}
	parentNode.loadChildren(m.adapter)
	if pos >= len(parentNode.children) {
		return nil
	}
	return parentNode.children[pos]
}
