package main

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tamlin/espalier"
	"github.com/tamlin/espalier/dirtree"
)

// treeRow is one visible line of the flattened tree. Display fields are
// captured when the row list is rebuilt, which only happens outside
// update cycles; View never has to query the model mid-pass.
type treeRow struct {
	ref      espalier.NodeRef
	path     string
	name     string
	depth    int
	isDir    bool
	expanded bool
	hasKids  bool
	size     int64
	modTime  time.Time
}

// Model is the main application model
type Model struct {
	cfg   *Config
	tree  *dirtree.Tree
	view  *espalier.Model
	tally *changeTally
	keys  KeyMap
	help  help.Model
	log   *slog.Logger

	rows   []treeRow
	cursor int
	scroll int

	// expanded is keyed by item path, so expansion survives passes that
	// re-stamp rows.
	expanded map[string]bool

	width  int
	height int

	showHelp      bool
	watchLive     bool
	statusMessage string
	lastChange    time.Time

	err error
}

// changeTally implements espalier.Sink. It only counts; the row list is
// rebuilt once per completed pass, not per bracket.
type changeTally struct {
	inserts   int
	removes   int
	refreshes int
}

func (s *changeTally) BeginInsert(parent espalier.NodeRef, first, last int) {
	s.inserts += last - first + 1
}
func (s *changeTally) EndInsert() {}
func (s *changeTally) BeginRemove(parent espalier.NodeRef, first, last int) {
	s.removes += last - first + 1
}
func (s *changeTally) EndRemove()  {}
func (s *changeTally) RefreshAll() { s.refreshes++ }

// newModel builds the TUI model and its espalier mirror. The eager pass
// inside espalier.New materializes the top level, so the first render
// already shows the root listing.
func newModel(cfg *Config, tree *dirtree.Tree, sched espalier.Scheduler, log *slog.Logger) Model {
	tally := &changeTally{}
	view := espalier.New(tree, espalier.Options{
		Sink:      tally,
		Scheduler: sched,
		Logger:    log,
	})

	m := Model{
		cfg:       cfg,
		tree:      tree,
		view:      view,
		tally:     tally,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		log:       log,
		expanded:  make(map[string]bool),
		watchLive: true,
	}
	m.rebuildRows()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// rebuildRows reflattens the mirror into the visible row list, keeping
// the cursor on the same path when it still exists. While an update
// cycle is open the model answers value reads with nil, so the rebuild
// is deferred to the completion's own rebuild, which also picks up any
// expansion toggled in the meantime.
func (m *Model) rebuildRows() {
	if m.view.Updating() {
		return
	}
	selected := m.currentPath()

	m.rows = m.rows[:0]
	m.appendRows(espalier.NodeRef{}, 0)

	if selected != "" {
		for i, r := range m.rows {
			if r.path == selected {
				m.cursor = i
				break
			}
		}
	}
	m.clampCursor()
}

func (m *Model) appendRows(parent espalier.NodeRef, depth int) {
	for i := 0; i < m.view.ChildCount(parent); i++ {
		ref := m.view.Index(i, 0, parent)
		item := m.view.ItemOf(ref)
		path, ok := item.(string)
		if !ok {
			continue
		}

		row := treeRow{
			ref:   ref,
			path:  path,
			depth: depth,
		}
		if name, ok := m.view.Value(ref, dirtree.RoleName).(string); ok {
			row.name = name
		}
		if isDir, ok := m.view.Value(ref, dirtree.RoleIsDir).(bool); ok {
			row.isDir = isDir
		}
		if size, ok := m.view.Value(ref, dirtree.RoleSize).(int64); ok {
			row.size = size
		}
		if mod, ok := m.view.Value(ref, dirtree.RoleModTime).(time.Time); ok {
			row.modTime = mod
		}
		row.hasKids = m.view.HasChildren(ref)
		row.expanded = m.expanded[path] && row.hasKids

		m.rows = append(m.rows, row)
		if row.expanded {
			m.appendRows(ref, depth+1)
		}
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.ensureVisible()
}

// ensureVisible scrolls the viewport so the cursor row stays on screen.
func (m *Model) ensureVisible() {
	visible := m.treeHeight()
	if visible <= 0 {
		return
	}
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+visible {
		m.scroll = m.cursor - visible + 1
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

// treeHeight is the number of tree rows that fit between the header and
// the status bar.
func (m *Model) treeHeight() int {
	h := m.height - 5
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) currentRow() *treeRow {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return &m.rows[m.cursor]
}

func (m *Model) currentPath() string {
	if r := m.currentRow(); r != nil {
		return r.path
	}
	return ""
}

// Messages

// fsChangedMsg is posted by the watcher after its debounce window.
type fsChangedMsg struct{}

// syncFlushMsg carries a queued update's completion onto the event loop.
type syncFlushMsg struct{ fn func() }

// watchLostMsg is posted when the watcher goroutine dies.
type watchLostMsg struct{ err error }

type clearStatusMsg struct{}
