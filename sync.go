package espalier

import (
	"log/slog"
	"time"
)

// syncStats aggregates one reconciliation pass for the debug log.
type syncStats struct {
	visited int // nodes whose child list was reconciled
	inserts int // insertion brackets emitted
	removes int // removal brackets emitted
}

// syncTree reconciles the whole cached tree against the adapter. Runs
// with the syncing flag set so consumer read-backs from inside
// notification brackets answer from the cache instead of lazy-loading
// mid-pass.
func (m *Model) syncTree() {
	start := time.Now()
	m.syncing = true
	m.stats = syncStats{}
	m.syncChildren(m.root)
	m.syncing = false
	m.log.Debug("sync: pass complete",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("visited", m.stats.visited),
		slog.Int("inserts", m.stats.inserts),
		slog.Int("removes", m.stats.removes))
}

// syncChildren reconciles n's cached children with the adapter's current
// order, emitting minimal bracketed notifications, then recurses into
// matched children that are materialized (or whose cheap has-children
// answer flipped while they were not).
//
// Three cursors drive the scan:
//
//	src  - scan position over the cached children
//	keep - start of the pending removal run: cached children in
//	       [keep, src) were not found in the unconsumed adapter window
//	dest - next unconsumed adapter position; IndexOf searches from here,
//	       so lookups are monotonic and duplicates resolve left to right
//
// Each cached child is looked up at or after dest. A miss extends the
// pending removal run. A hit (or running off the cached end, where the
// adapter's total count serves as the destination) flushes the removal
// run as one bracket, then flushes adapter items [dest, pos) as one
// insertion bracket of fresh unmaterialized nodes. Ranges are therefore
// valid against the tree state at Begin time, and a removal bracket
// always closes before a later insertion bracket opens.
func (m *Model) syncChildren(n *node) {
	m.stats.visited++
	ref := m.refOf(n)

	src, keep, dest := 0, 0, 0
	for src <= len(n.children) {
		finishing := src >= len(n.children)
		var cur *node
		var pos int
		if finishing {
			pos = m.adapter.ChildCount(n.item)
		} else {
			cur = n.children[src]
			pos = m.adapter.IndexOf(n.item, cur.item, dest)
			if pos < 0 {
				// Vanished from the unconsumed window; joins the
				// pending removal run.
				src++
				continue
			}
		}

		if src > keep {
			m.beginRemove(ref, keep, src-1)
			n.removeRange(keep, src)
			src = keep
			m.endRemove()
		}

		if pos > dest {
			count := pos - dest
			m.beginInsert(ref, src, src+count-1)
			batch := make([]*node, count)
			for i := range batch {
				// Fresh nodes stay unmaterialized; their subtrees are
				// not synced until the consumer asks for them.
				batch[i] = newChild(n, m.adapter.ChildAt(n.item, dest+i), src+i)
			}
			n.insertRange(src, batch)
			m.endInsert()
			src += count
		}
		dest = pos + 1

		if cur != nil {
			if !cur.lazilyConsistent(m.adapter) {
				// The cheap answer flipped while unloaded: adopt
				// loaded-empty so the descent below materializes the
				// current children with notifications.
				cur.loaded = true
			}
			if cur.loaded {
				m.syncChildren(cur)
			}
		}
		src++
		keep = src
	}
	// A node touched by sync counts as loaded even with zero children.
	n.loaded = true
}

func (m *Model) beginInsert(parent NodeRef, first, last int) {
	m.stats.inserts++
	if m.sink != nil {
		m.sink.BeginInsert(parent, first, last)
	}
}

func (m *Model) endInsert() {
	if m.sink != nil {
		m.sink.EndInsert()
	}
}

func (m *Model) beginRemove(parent NodeRef, first, last int) {
	m.stats.removes++
	if m.sink != nil {
		m.sink.BeginRemove(parent, first, last)
	}
}

func (m *Model) endRemove() {
	if m.sink != nil {
		m.sink.EndRemove()
	}
}
