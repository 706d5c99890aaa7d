package espalier

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test source
// ============================================================================

// fakeItem is one mutable entry in the scripted source tree.
type fakeItem struct {
	label    string
	parent   *fakeItem
	children []*fakeItem
}

// fi builds a source item with the given children attached.
func fi(label string, kids ...*fakeItem) *fakeItem {
	n := &fakeItem{label: label, children: kids}
	for _, k := range kids {
		k.parent = n
	}
	return n
}

// fakeSource is a scriptable in-memory Adapter that counts the calls the
// model makes, keyed by the label of the parent item ("/" for the root).
type fakeSource struct {
	roots []*fakeItem

	hasChildrenCalls map[string]int
	childCountCalls  map[string]int
	childAtCalls     map[string]int
}

func newFakeSource(roots ...*fakeItem) *fakeSource {
	return &fakeSource{
		roots:            roots,
		hasChildrenCalls: map[string]int{},
		childCountCalls:  map[string]int{},
		childAtCalls:     map[string]int{},
	}
}

func (s *fakeSource) key(item Item) string {
	if item == nil {
		return "/"
	}
	return item.(*fakeItem).label
}

func (s *fakeSource) kids(item Item) []*fakeItem {
	if item == nil {
		return s.roots
	}
	return item.(*fakeItem).children
}

func (s *fakeSource) HasChildren(item Item) bool {
	s.hasChildrenCalls[s.key(item)]++
	return len(s.kids(item)) > 0
}

func (s *fakeSource) ChildCount(item Item) int {
	s.childCountCalls[s.key(item)]++
	return len(s.kids(item))
}

func (s *fakeSource) ChildAt(item Item, pos int) Item {
	s.childAtCalls[s.key(item)]++
	return s.kids(item)[pos]
}

func (s *fakeSource) ParentOf(item Item) Item {
	fit := item.(*fakeItem)
	if fit.parent == nil {
		return nil
	}
	return fit.parent
}

func (s *fakeSource) IndexOf(parent, item Item, from int) int {
	kids := s.kids(parent)
	for i := from; i < len(kids); i++ {
		if kids[i] == item {
			return i
		}
	}
	return -1
}

func (s *fakeSource) Value(item Item, role Role) any {
	if role == RoleDisplay {
		return item.(*fakeItem).label
	}
	return nil
}

// Mutators. A nil parent addresses the top level.

func (s *fakeSource) insertAt(parent *fakeItem, pos int, child *fakeItem) {
	child.parent = parent
	kids := s.kids(asItem(parent))
	kids = append(kids[:pos], append([]*fakeItem{child}, kids[pos:]...)...)
	s.setKids(parent, kids)
}

func (s *fakeSource) removeAt(parent *fakeItem, pos int) *fakeItem {
	kids := s.kids(asItem(parent))
	removed := kids[pos]
	removed.parent = nil
	s.setKids(parent, append(kids[:pos:pos], kids[pos+1:]...))
	return removed
}

func (s *fakeSource) reorder(parent *fakeItem, kids ...*fakeItem) {
	for _, k := range kids {
		k.parent = parent
	}
	s.setKids(parent, kids)
}

func (s *fakeSource) setKids(parent *fakeItem, kids []*fakeItem) {
	if parent == nil {
		s.roots = kids
		return
	}
	parent.children = kids
}

// asItem avoids handing the model a typed-nil Item.
func asItem(fit *fakeItem) Item {
	if fit == nil {
		return nil
	}
	return fit
}

// ============================================================================
// Recording sink
// ============================================================================

// recordingSink captures the notification stream as readable strings and
// verifies the bracket contract as it goes: ranges valid against the tree
// state at Begin time, mutation applied by End time, no nested brackets.
type recordingSink struct {
	t *testing.T
	m *Model // set right after New; nil during the eager construction pass

	events    []string
	refreshes int
	pending   []pendingBracket
}

type pendingBracket struct {
	kind        string
	parent      NodeRef
	first, last int
	preCount    int
}

func (s *recordingSink) parentLabel(ref NodeRef) string {
	if !ref.IsValid() {
		return "root"
	}
	if s.m == nil {
		return "?"
	}
	if fit, ok := s.m.ItemOf(ref).(*fakeItem); ok {
		return fit.label
	}
	return "?"
}

func (s *recordingSink) begin(kind string, parent NodeRef, first, last int) {
	s.events = append(s.events, fmt.Sprintf("%s(%s,%d,%d)", kind, s.parentLabel(parent), first, last))
	require.Empty(s.t, s.pending, "nested notification brackets")
	pb := pendingBracket{kind: kind, parent: parent, first: first, last: last, preCount: -1}
	if s.m != nil {
		pb.preCount = s.m.ChildCount(parent)
		require.GreaterOrEqual(s.t, first, 0, "%s: negative first", kind)
		require.GreaterOrEqual(s.t, last, first, "%s: inverted range", kind)
		if kind == "beginInsert" {
			require.LessOrEqual(s.t, first, pb.preCount, "%s: insert position beyond row count", kind)
		} else {
			require.LessOrEqual(s.t, last, pb.preCount-1, "%s: removal range beyond row count", kind)
		}
	}
	s.pending = append(s.pending, pb)
}

func (s *recordingSink) end(kind string) {
	s.events = append(s.events, kind)
	require.Len(s.t, s.pending, 1, "%s without open bracket", kind)
	pb := s.pending[0]
	s.pending = s.pending[:0]
	if s.m == nil || pb.preCount < 0 {
		return
	}
	span := pb.last - pb.first + 1
	post := s.m.ChildCount(pb.parent)
	if pb.kind == "beginInsert" {
		require.Equal(s.t, pb.preCount+span, post, "row count after insert bracket")
	} else {
		require.Equal(s.t, pb.preCount-span, post, "row count after remove bracket")
	}
}

func (s *recordingSink) BeginInsert(parent NodeRef, first, last int) {
	s.begin("beginInsert", parent, first, last)
}

func (s *recordingSink) EndInsert() { s.end("endInsert") }

func (s *recordingSink) BeginRemove(parent NodeRef, first, last int) {
	s.begin("beginRemove", parent, first, last)
}

func (s *recordingSink) EndRemove() { s.end("endRemove") }

func (s *recordingSink) RefreshAll() {
	s.refreshes++
	s.events = append(s.events, "refreshAll")
}

// takeEvents returns the recorded stream and clears it.
func (s *recordingSink) takeEvents() []string {
	ev := s.events
	s.events = nil
	return ev
}

// ============================================================================
// Fixture helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newFixture builds a model over src with a verifying sink attached and
// the construction pass already swallowed.
func newFixture(t *testing.T, src *fakeSource) (*Model, *recordingSink) {
	t.Helper()
	sink := &recordingSink{t: t}
	m := New(src, Options{Sink: sink, Logger: testLogger()})
	sink.m = m
	sink.takeEvents()
	sink.refreshes = 0
	return m, sink
}

// resync runs one explicit update cycle.
func resync(m *Model) {
	m.BeginUpdate()
	m.EndUpdate()
}

// rowLabels reads the display values of parent's children through the
// public surface.
func rowLabels(t *testing.T, m *Model, parent NodeRef) []string {
	t.Helper()
	count := m.ChildCount(parent)
	labels := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ref := m.Index(i, 0, parent)
		require.True(t, ref.IsValid(), "row %d has no valid ref", i)
		require.Equal(t, i, ref.Row())
		labels = append(labels, m.Value(ref, RoleDisplay).(string))
	}
	return labels
}

// assertRowIntegrity walks the cached tree checking that every child's
// stamped row matches its actual position and its parent link.
func assertRowIntegrity(t *testing.T, m *Model) {
	t.Helper()
	var walk func(n *node)
	walk = func(n *node) {
		for i, c := range n.children {
			assert.Equal(t, i, c.row, "child %v of %v mis-stamped", c.item, n.item)
			assert.Same(t, n, c.parent, "child %v has wrong parent link", c.item)
			assert.False(t, c.gone, "live child %v marked gone", c.item)
			walk(c)
		}
	}
	walk(m.root)
}

// ============================================================================
// Construction and lifecycle
// ============================================================================

func TestNewRequiresAdapter(t *testing.T) {
	require.Panics(t, func() { New(nil, Options{}) })
}

func TestNewMaterializesTopLevel(t *testing.T) {
	src := newFakeSource(fi("a"), fi("b"), fi("c"))
	sink := &recordingSink{t: t}
	m := New(src, Options{Sink: sink, Logger: testLogger()})
	sink.m = m

	assert.Equal(t, []string{"beginInsert(root,0,2)", "endInsert"}, sink.takeEvents())
	assert.Zero(t, sink.refreshes, "construction must not emit refreshAll")
	assert.Equal(t, []string{"a", "b", "c"}, rowLabels(t, m, NodeRef{}))
	assertRowIntegrity(t, m)
}

func TestNewKeepsNestedLevelsUnmaterialized(t *testing.T) {
	src := newFakeSource(fi("a", fi("a1"), fi("a2")), fi("b", fi("b1")))
	m, _ := newFixture(t, src)

	assert.Equal(t, 2, m.ChildCount(NodeRef{}))
	assert.Zero(t, src.childAtCalls["a"], "nested children enumerated eagerly")
	assert.Zero(t, src.childAtCalls["b"], "nested children enumerated eagerly")
}

func TestNewWithEmptySource(t *testing.T) {
	src := newFakeSource()
	sink := &recordingSink{t: t}
	m := New(src, Options{Sink: sink, Logger: testLogger()})
	sink.m = m

	assert.Empty(t, sink.takeEvents())
	assert.Zero(t, m.ChildCount(NodeRef{}))
}

func TestNewWithoutSink(t *testing.T) {
	src := newFakeSource(fi("a"))
	m := New(src, Options{Logger: testLogger()})

	src.insertAt(nil, 1, fi("b"))
	resync(m)

	assert.Equal(t, []string{"a", "b"}, rowLabels(t, m, NodeRef{}))
}

func TestColumnCountIsOne(t *testing.T) {
	src := newFakeSource(fi("a"))
	m, _ := newFixture(t, src)

	assert.Equal(t, 1, m.ColumnCount(NodeRef{}))
	assert.Equal(t, 1, m.ColumnCount(m.Index(0, 0, NodeRef{})))
}

func TestRootAlwaysReportsChildren(t *testing.T) {
	src := newFakeSource()
	m, _ := newFixture(t, src)

	assert.True(t, m.HasChildren(NodeRef{}))
	assert.Zero(t, m.ChildCount(NodeRef{}))
}
