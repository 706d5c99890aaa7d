package espalier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Nested updates
// ============================================================================

func TestUpdateNestingRunsOnePass(t *testing.T) {
	src := newFakeSource(fi("a"))
	m, sink := newFixture(t, src)

	m.BeginUpdate()
	m.BeginUpdate()
	m.BeginUpdate()
	src.insertAt(nil, 1, fi("b"))

	m.EndUpdate()
	assert.Empty(t, sink.takeEvents(), "inner end must not flush")
	assert.True(t, m.Updating())

	m.EndUpdate()
	assert.Empty(t, sink.takeEvents(), "inner end must not flush")

	m.EndUpdate()
	assert.Equal(t, []string{"beginInsert(root,1,1)", "endInsert", "refreshAll"}, sink.takeEvents())
	assert.False(t, m.Updating())
	assert.Equal(t, 1, sink.refreshes)
}

func TestUpdateSuppressesValuesWhileOpen(t *testing.T) {
	src := newFakeSource(fi("a"))
	m, _ := newFixture(t, src)
	ref := m.Index(0, 0, NodeRef{})

	m.BeginUpdate()
	assert.Nil(t, m.Value(ref, RoleDisplay))
	assert.NotNil(t, m.ItemOf(ref), "addressing stays live during an update")
	m.EndUpdate()

	assert.Equal(t, "a", m.Value(ref, RoleDisplay))
}

func TestUpdateUnbalancedEndIsIgnored(t *testing.T) {
	src := newFakeSource(fi("a"))
	m, sink := newFixture(t, src)

	m.EndUpdate()
	m.EndUpdate()
	assert.Empty(t, sink.takeEvents())
	assert.False(t, m.Updating())

	// The counter is not left negative: a regular cycle still works.
	src.insertAt(nil, 1, fi("b"))
	resync(m)
	assert.Equal(t, []string{"beginInsert(root,1,1)", "endInsert", "refreshAll"}, sink.takeEvents())
}

// ============================================================================
// Queued updates
// ============================================================================

func TestQueuedUpdateCoalesces(t *testing.T) {
	src := newFakeSource(fi("a"))
	var queue []func()
	sink := &recordingSink{t: t}
	m := New(src, Options{
		Sink:      sink,
		Logger:    testLogger(),
		Scheduler: func(fn func()) { queue = append(queue, fn) },
	})
	sink.m = m
	sink.takeEvents()

	m.QueuedUpdate()
	m.QueuedUpdate()
	m.QueuedUpdate()
	require.Len(t, queue, 1, "repeat requests must not schedule again")
	assert.True(t, m.Updating())

	src.insertAt(nil, 1, fi("b"))
	queue[0]()

	assert.Equal(t, []string{"beginInsert(root,1,1)", "endInsert", "refreshAll"}, sink.takeEvents())
	assert.False(t, m.Updating())

	// The next request schedules a fresh flush.
	m.QueuedUpdate()
	assert.Len(t, queue, 2)
	queue[1]()
	assert.Equal(t, []string{"refreshAll"}, sink.takeEvents())
}

func TestQueuedUpdateWithoutSchedulerFlushesInline(t *testing.T) {
	src := newFakeSource(fi("a"))
	m, sink := newFixture(t, src)

	src.insertAt(nil, 0, fi("x"))
	m.QueuedUpdate()

	assert.Equal(t, []string{"beginInsert(root,0,0)", "endInsert", "refreshAll"}, sink.takeEvents())
	assert.False(t, m.Updating())
}

func TestQueuedUpdateIgnoredInsideExplicitUpdate(t *testing.T) {
	src := newFakeSource(fi("a"))
	var queue []func()
	sink := &recordingSink{t: t}
	m := New(src, Options{
		Sink:      sink,
		Logger:    testLogger(),
		Scheduler: func(fn func()) { queue = append(queue, fn) },
	})
	sink.m = m
	sink.takeEvents()

	m.BeginUpdate()
	m.QueuedUpdate()
	assert.Empty(t, queue, "queued request inside an open update must be absorbed")
	m.EndUpdate()

	assert.Equal(t, []string{"refreshAll"}, sink.takeEvents())
}

// ============================================================================
// Reads during a pass
// ============================================================================

// passProbeSink reads back through the model in the middle of each bracket
// and records what it saw.
type passProbeSink struct {
	m          *Model
	preCounts  []int
	postCounts []int
	midValues  []any
}

func (s *passProbeSink) BeginInsert(parent NodeRef, first, last int) {
	if s.m == nil {
		return
	}
	s.preCounts = append(s.preCounts, s.m.ChildCount(parent))
	if s.m.ChildCount(parent) > 0 {
		s.midValues = append(s.midValues, s.m.Value(s.m.Index(0, 0, parent), RoleDisplay))
	}
}

func (s *passProbeSink) EndInsert() {
	if s.m == nil {
		return
	}
	s.postCounts = append(s.postCounts, s.m.ChildCount(NodeRef{}))
}

func (s *passProbeSink) BeginRemove(parent NodeRef, first, last int) {
	if s.m == nil {
		return
	}
	s.preCounts = append(s.preCounts, s.m.ChildCount(parent))
}

func (s *passProbeSink) EndRemove() {
	if s.m == nil {
		return
	}
	s.postCounts = append(s.postCounts, s.m.ChildCount(NodeRef{}))
}

func (s *passProbeSink) RefreshAll() {}

func TestPassServesRowCountsFromCache(t *testing.T) {
	src := newFakeSource(fi("a"), fi("b"))
	sink := &passProbeSink{}
	m := New(src, Options{Sink: sink, Logger: testLogger()})
	sink.m = m
	sink.preCounts, sink.postCounts, sink.midValues = nil, nil, nil

	src.insertAt(nil, 1, fi("x"))
	resync(m)

	// At begin time the cached count still excludes the pending row even
	// though the source already reports three children.
	require.Equal(t, []int{2}, sink.preCounts)
	require.Equal(t, []int{3}, sink.postCounts)
	for _, v := range sink.midValues {
		assert.Nil(t, v, "values must stay neutral inside the pass")
	}
}
