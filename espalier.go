// Package espalier mirrors an external hierarchical data source into an
// in-memory tree, materializing nodes only when a consumer asks for them,
// and reconciles the mirror against the source with minimal bracketed
// insert/remove notifications.
//
// The model is demand-driven in both directions. Reads (ChildCount,
// Index, HasChildren, Value) load just enough of the source to answer.
// Writes never touch the model directly: the source mutates on its own,
// then announces the fact through BeginUpdate/EndUpdate (or QueuedUpdate,
// which coalesces bursts); the closing EndUpdate diffs the cached tree
// against the adapter and streams the difference to the Sink as ranges a
// view can apply without rebuilding, preserving node identity and
// therefore any consumer-held selection or expansion state.
//
// A Model is confined to one goroutine. Every entry point, including the
// Updater methods, must be called from the goroutine that owns the model;
// hosts bridge from watcher goroutines or timers by posting onto their
// own event loop.
package espalier

import (
	"io"
	"log/slog"
)

// Options configures a Model. The zero value is usable: no sink, inline
// queued-update completion, discarded logs.
type Options struct {
	// Sink receives structural notifications. May be nil.
	Sink Sink

	// Scheduler defers the completion of QueuedUpdate onto the host's
	// event loop. When nil, queued updates complete inline and therefore
	// do not coalesce.
	Scheduler Scheduler

	// Logger receives one debug record per sync pass. May be nil.
	Logger *slog.Logger
}

// Model is a lazily populated mirror of an Adapter's tree.
type Model struct {
	adapter Adapter
	sink    Sink
	sched   Scheduler
	log     *slog.Logger

	root     *node
	updating int  // update nesting depth
	syncing  bool // a reconciliation pass is running
	stats    syncStats
}

// New creates a Model over adapter and runs one eager sync pass, so the
// top-level nodes exist before the first consumer question. When the
// adapter is UpdaterAware it receives the model's update surface first.
// Panics on a nil adapter.
func New(adapter Adapter, opts Options) *Model {
	if adapter == nil {
		panic("espalier: New requires an adapter")
	}
	m := &Model{
		adapter: adapter,
		sink:    opts.Sink,
		sched:   opts.Scheduler,
		log:     opts.Logger,
		root:    &node{},
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ua, ok := adapter.(UpdaterAware); ok {
		ua.AttachUpdater(m)
	}
	m.syncTree()
	return m
}

// BeginUpdate opens an update cycle. Cycles nest; only the outermost
// EndUpdate reconciles. While any cycle is open, Value reads answer nil.
func (m *Model) BeginUpdate() {
	m.updating++
}

// EndUpdate closes one update cycle. Closing the outermost cycle runs a
// full reconciliation pass and then emits RefreshAll. An EndUpdate
// without a matching BeginUpdate is ignored.
func (m *Model) EndUpdate() {
	if m.updating == 0 {
		return
	}
	if m.updating == 1 {
		m.syncTree()
	}
	m.updating--
	if m.updating == 0 && m.sink != nil {
		m.sink.RefreshAll()
	}
}

// QueuedUpdate requests a deferred reconciliation. The first call while
// no update is in progress opens a cycle and schedules its completion;
// further calls before the completion runs coalesce into the same pass.
func (m *Model) QueuedUpdate() {
	if m.updating != 0 {
		return
	}
	m.BeginUpdate()
	if m.sched != nil {
		m.sched(m.EndUpdate)
		return
	}
	m.EndUpdate()
}

// Updating reports whether an update cycle is currently open.
func (m *Model) Updating() bool {
	return m.updating > 0
}
