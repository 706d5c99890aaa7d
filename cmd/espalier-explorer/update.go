package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

const statusLinger = 3 * time.Second

// Update handles all messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ensureVisible()
		return m, nil

	case fsChangedMsg:
		// Invalidate and queue one pass; bursts coalesce because only
		// the first queued update in a cycle schedules a completion.
		m.tree.Refresh()
		m.lastChange = time.Now()
		m.statusMessage = "change detected, syncing..."
		return m, nil

	case syncFlushMsg:
		ins, rem := m.tally.inserts, m.tally.removes
		msg.fn()
		m.rebuildRows()
		m.statusMessage = fmt.Sprintf("synced: +%d/-%d rows", m.tally.inserts-ins, m.tally.removes-rem)
		return m, clearStatusAfter(statusLinger)

	case watchLostMsg:
		m.watchLive = false
		m.statusMessage = fmt.Sprintf("watch lost (%v), use r to refresh", msg.err)
		return m, nil

	case clearStatusMsg:
		m.statusMessage = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The help overlay swallows everything except closing keys.
	if m.showHelp {
		if key.Matches(msg, m.keys.Esc) || key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Esc):
		m.statusMessage = ""
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-m.treeHeight())
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(m.treeHeight())
	case key.Matches(msg, m.keys.Home):
		m.cursor = 0
		m.clampCursor()
	case key.Matches(msg, m.keys.End):
		m.cursor = len(m.rows) - 1
		m.clampCursor()

	case key.Matches(msg, m.keys.Right):
		if row := m.currentRow(); row != nil && row.hasKids {
			if !row.expanded {
				m.expanded[row.path] = true
				m.rebuildRows()
			} else if m.cursor+1 < len(m.rows) {
				// Already open: step into the first child.
				m.moveCursor(1)
			}
		}

	case key.Matches(msg, m.keys.Enter):
		if row := m.currentRow(); row != nil && row.hasKids {
			if row.expanded {
				delete(m.expanded, row.path)
			} else {
				m.expanded[row.path] = true
			}
			m.rebuildRows()
		}

	case key.Matches(msg, m.keys.Left):
		if row := m.currentRow(); row != nil {
			if row.expanded {
				delete(m.expanded, row.path)
				m.rebuildRows()
			} else {
				m.jumpToParent()
			}
		}

	case key.Matches(msg, m.keys.GoToParent):
		m.jumpToParent()

	case key.Matches(msg, m.keys.Refresh):
		m.tree.Refresh()
		m.statusMessage = "refreshing..."
	}

	return m, nil
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

// jumpToParent moves the cursor to the nearest earlier row one level up.
func (m *Model) jumpToParent() {
	row := m.currentRow()
	if row == nil || row.depth == 0 {
		return
	}
	for i := m.cursor - 1; i >= 0; i-- {
		if m.rows[i].depth < row.depth {
			m.cursor = i
			break
		}
	}
	m.ensureVisible()
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
