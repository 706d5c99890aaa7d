package sqltree

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamlin/espalier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Open(filepath.Join(t.TempDir(), "tree.db"), Options{Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

// seed inserts labels under parent in order and returns their ids.
func seed(t *testing.T, tree *Tree, parent int64, labels ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(labels))
	for _, l := range labels {
		id, err := tree.Insert(parent, len(ids), l)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

// orderOf reads the sibling labels under parent through the adapter
// surface, checking pos density on the way.
func orderOf(t *testing.T, tree *Tree, parent int64) []string {
	t.Helper()
	item := espalier.Item(nil)
	if parent != Top {
		item = parent
	}
	labels := make([]string, 0, tree.ChildCount(item))
	for i := 0; i < tree.ChildCount(item); i++ {
		id := tree.ChildAt(item, i).(int64)
		require.Equal(t, i, tree.IndexOf(item, id, 0), "pos not dense at ordinal %d", i)
		label, err := tree.LabelOf(id)
		require.NoError(t, err)
		labels = append(labels, label)
	}
	return labels
}

// ============================================================================
// Schema / persistence
// ============================================================================

func TestOpenPersistsAcrossConnections(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "tree.db")

	tree, err := Open(dsn, Options{Logger: testLogger()})
	require.NoError(t, err)
	id, err := tree.Insert(Top, 0, "kept")
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	reopened, err := Open(dsn, Options{Logger: testLogger()})
	require.NoError(t, err)
	defer reopened.Close()
	label, err := reopened.LabelOf(id)
	require.NoError(t, err)
	assert.Equal(t, "kept", label)
}

// ============================================================================
// Mutators
// ============================================================================

func TestInsertKeepsPositionsDense(t *testing.T) {
	tree := openTree(t)
	seed(t, tree, Top, "a", "b", "c")

	_, err := tree.Insert(Top, 1, "x")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "x", "b", "c"}, orderOf(t, tree, Top))
}

func TestInsertClampsPosition(t *testing.T) {
	tree := openTree(t)
	seed(t, tree, Top, "a")

	_, err := tree.Insert(Top, -5, "first")
	require.NoError(t, err)
	_, err = tree.Insert(Top, 99, "last")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "a", "last"}, orderOf(t, tree, Top))
}

func TestDeleteCascadesAndClosesGap(t *testing.T) {
	tree := openTree(t)
	ids := seed(t, tree, Top, "a", "b", "c")
	kids := seed(t, tree, ids[0], "a1", "a2")

	require.NoError(t, tree.Delete(ids[0]))

	assert.Equal(t, []string{"b", "c"}, orderOf(t, tree, Top))
	_, err := tree.LabelOf(kids[0])
	assert.ErrorIs(t, err, ErrNotFound, "cascade must drop the subtree")
	_, err = tree.LabelOf(kids[1])
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, tree.Delete(ids[0]), ErrNotFound)
}

func TestMoveToReparents(t *testing.T) {
	tree := openTree(t)
	ids := seed(t, tree, Top, "a", "b")
	kids := seed(t, tree, ids[0], "x", "y")

	require.NoError(t, tree.MoveTo(kids[1], ids[1], 0))

	assert.Equal(t, []string{"x"}, orderOf(t, tree, ids[0]))
	assert.Equal(t, []string{"y"}, orderOf(t, tree, ids[1]))
}

func TestMoveToWithinParentReorders(t *testing.T) {
	tree := openTree(t)
	ids := seed(t, tree, Top, "a", "b", "c")

	require.NoError(t, tree.MoveTo(ids[0], Top, 2))

	assert.Equal(t, []string{"b", "c", "a"}, orderOf(t, tree, Top))
}

func TestMoveToRejectsCycles(t *testing.T) {
	tree := openTree(t)
	a := seed(t, tree, Top, "a")[0]
	b := seed(t, tree, a, "b")[0]
	c := seed(t, tree, b, "c")[0]

	assert.ErrorIs(t, tree.MoveTo(a, c, 0), ErrCycle)
	assert.ErrorIs(t, tree.MoveTo(a, a, 0), ErrCycle)
	assert.Equal(t, []string{"a"}, orderOf(t, tree, Top), "failed move must change nothing")
}

func TestMutatorsReportMissingNodes(t *testing.T) {
	tree := openTree(t)
	a := seed(t, tree, Top, "a")[0]

	assert.ErrorIs(t, tree.Delete(9999), ErrNotFound)
	assert.ErrorIs(t, tree.Rename(9999, "x"), ErrNotFound)
	assert.ErrorIs(t, tree.MoveTo(9999, Top, 0), ErrNotFound)
	assert.ErrorIs(t, tree.MoveTo(a, 9999, 0), ErrNotFound)
	_, err := tree.LabelOf(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// Adapter surface
// ============================================================================

func TestAdapterAnswers(t *testing.T) {
	tree := openTree(t)
	ids := seed(t, tree, Top, "a", "b")
	kid := seed(t, tree, ids[0], "a1")[0]

	assert.True(t, tree.HasChildren(nil))
	assert.True(t, tree.HasChildren(ids[0]))
	assert.False(t, tree.HasChildren(ids[1]))

	assert.True(t, tree.ParentOf(ids[0]) == nil, "top-level parent must be the untyped nil root marker")
	assert.Equal(t, ids[0], tree.ParentOf(kid))
	assert.Equal(t, int64(9999), tree.ParentOf(int64(9999)), "deleted ids resolve as detached")

	assert.Equal(t, 1, tree.IndexOf(nil, ids[1], 0))
	assert.Equal(t, -1, tree.IndexOf(nil, ids[1], 2))
	assert.Equal(t, -1, tree.IndexOf(ids[0], ids[1], 0))

	assert.Equal(t, "a", tree.Value(ids[0], RoleLabel))
	assert.Equal(t, ids[0], tree.Value(ids[0], RoleID))
	assert.Nil(t, tree.Value(ids[0], espalier.Role(42)))
	assert.Nil(t, tree.Value(nil, RoleLabel))
}

// ============================================================================
// Model integration
// ============================================================================

func TestModelMirrorsTable(t *testing.T) {
	tree := openTree(t)
	seed(t, tree, Top, "a", "b")
	m := espalier.New(tree, espalier.Options{Logger: testLogger()})

	// Mutators announce through the attached updater; no manual
	// bracketing at the call site.
	id, err := tree.Insert(Top, 1, "x")
	require.NoError(t, err)

	labels := make([]string, 0, m.ChildCount(espalier.NodeRef{}))
	for i := 0; i < m.ChildCount(espalier.NodeRef{}); i++ {
		labels = append(labels, m.Value(m.Index(i, 0, espalier.NodeRef{}), RoleLabel).(string))
	}
	require.Equal(t, []string{"a", "x", "b"}, labels)

	ref := m.RefOf(id)
	require.True(t, ref.IsValid())
	assert.Equal(t, 1, ref.Row())

	require.NoError(t, tree.Rename(id, "renamed"))
	assert.Equal(t, "renamed", m.Value(ref, RoleLabel))

	require.NoError(t, tree.Delete(id))
	assert.Nil(t, m.Value(ref, RoleLabel), "handle must go stale after removal")
	assert.Equal(t, 2, m.ChildCount(espalier.NodeRef{}))
}
