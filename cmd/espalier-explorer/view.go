package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire UI
func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.width == 0 {
		return "loading..."
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	header := m.renderHeader()
	content := m.renderContent()
	status := m.renderStatus()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		status,
	)
}

// renderHeader renders the title bar with the mirrored root
func (m Model) renderHeader() string {
	title := headerStyle.Render("Espalier Explorer")
	root := pathStyle.Render(truncate(m.tree.Root(), m.width-24))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", root)
}

// renderContent renders the tree pane and the detail pane side by side
func (m Model) renderContent() string {
	treeWidth := m.width * 2 / 3
	detailWidth := m.width - treeWidth - 6
	if detailWidth < 20 {
		treeWidth = m.width - 4
		detailWidth = 0
	}

	tree := paneStyle.Width(treeWidth).Height(m.treeHeight()).Render(m.renderTree(treeWidth))
	if detailWidth <= 0 {
		return tree
	}
	detail := paneStyle.Width(detailWidth).Height(m.treeHeight()).Render(m.renderDetail(detailWidth))
	return lipgloss.JoinHorizontal(lipgloss.Top, tree, detail)
}

// renderTree renders the visible window of flattened rows
func (m Model) renderTree(width int) string {
	if len(m.rows) == 0 {
		return hiddenStyle.Render("(empty)")
	}

	visible := m.treeHeight()
	end := m.scroll + visible
	if end > len(m.rows) {
		end = len(m.rows)
	}

	var b strings.Builder
	for i := m.scroll; i < end; i++ {
		row := m.rows[i]

		glyph := "  "
		switch {
		case row.expanded:
			glyph = "▾ "
		case row.hasKids:
			glyph = "▸ "
		}

		line := strings.Repeat("  ", row.depth) + glyph + row.name
		line = truncate(line, width)

		style := fileStyle
		switch {
		case strings.HasPrefix(row.name, "."):
			style = hiddenStyle
		case row.isDir:
			style = dirStyle
		}
		if i == m.cursor {
			style = selectedStyle
		}

		b.WriteString(style.Render(line))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderDetail renders metadata for the selected row
func (m Model) renderDetail(width int) string {
	row := m.currentRow()
	if row == nil {
		return hiddenStyle.Render("nothing selected")
	}

	kind := "file"
	if row.isDir {
		kind = "directory"
	}

	lines := []struct{ label, value string }{
		{"Name", row.name},
		{"Path", row.path},
		{"Kind", kind},
		{"Size", formatSize(row.size)},
		{"Modified", row.modTime.Format("2006-01-02 15:04:05")},
	}

	var b strings.Builder
	for i, l := range lines {
		b.WriteString(detailLabelStyle.Render(l.label))
		b.WriteString(detailValueStyle.Render(truncate(l.value, width-12)))
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderStatus renders the bottom status bar
func (m Model) renderStatus() string {
	watch := statusLiveStyle.Render("● live")
	if !m.watchLive {
		watch = statusLostStyle.Render("○ manual")
	}

	counts := statusCountStyle.Render(fmt.Sprintf("%d rows", len(m.rows)))

	parts := []string{watch, counts}
	if m.statusMessage != "" {
		parts = append(parts, m.statusMessage)
	}
	parts = append(parts, m.help.View(m.keys))

	return statusStyle.Width(m.width).Render(strings.Join(parts, "  │  "))
}

// renderHelpOverlay renders the full-screen help view
func (m Model) renderHelpOverlay() string {
	title := helpTitleStyle.Render("Espalier Explorer Keys")

	m.help.ShowAll = true
	body := m.help.View(m.keys)

	hint := hiddenStyle.Render("press ? or esc to close")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, "", hint)
}

// formatSize renders a byte count in a compact human form
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
