package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"framegrid/internal/grid"
)

const (
	maxCellWidth = 24
	minCellWidth = 3
	colGap       = 2
)

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	typeTag  lipgloss.Style
	cursor   lipgloss.Style
	selected lipgloss.Style
	footer   lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	info     lipgloss.Style
	menu     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		header:   lipgloss.NewStyle().Bold(true),
		typeTag:  lipgloss.NewStyle().Faint(true),
		cursor:   lipgloss.NewStyle().Reverse(true),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		footer:   lipgloss.NewStyle().Faint(true),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		info:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		menu:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// View implements tea.Model.
func (m Model) View() string {
	view := m.ctrl.View()
	var b strings.Builder

	title := fmt.Sprintf("dataset %s · %s", m.ctrl.Ref(), view.Status)
	if view.Busy {
		title += " · applying change…"
	}
	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n\n")

	if len(view.Columns) == 0 {
		if view.Status == grid.StatusReady {
			b.WriteString("no columns\n")
		} else {
			b.WriteString("loading…\n")
		}
	} else {
		b.WriteString(m.renderTable(view))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.footer.Render(view.Page.Footer()))
	if view.Sort.IsSorted() {
		b.WriteString(m.styles.footer.Render(fmt.Sprintf("  sorted by %s %s", view.Sort.Column, view.Sort.Direction)))
	}
	b.WriteString("\n")

	switch m.mode {
	case modeFind, modeFilter:
		b.WriteString(m.input.View())
		b.WriteString("\n")
	case modeTypeMenu:
		b.WriteString(m.renderMenu())
		b.WriteString("\n")
	}
	if m.note != nil {
		b.WriteString(m.renderNote(*m.note))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderTable(view grid.View) string {
	widths := columnWidths(view)
	first, last := m.visibleRange(widths)

	var b strings.Builder
	var names, tags []string
	for i := first; i <= last; i++ {
		col := view.Columns[i]
		name := col.Key
		if view.Sort.Column == col.Key {
			switch view.Sort.Direction {
			case grid.SortAscending:
				name += " ↑"
			case grid.SortDescending:
				name += " ↓"
			}
		}
		if _, ok := m.ctrl.Overlay().Filters[col.Key]; ok {
			name += " *"
		}
		names = append(names, m.styles.header.Render(pad(name, widths[i])))
		tag := ""
		if col.Typed() {
			tag = col.DeclaredType.Label()
		}
		tags = append(tags, m.styles.typeTag.Render(pad(tag, widths[i])))
	}
	gap := strings.Repeat(" ", colGap)
	b.WriteString("  " + strings.Join(names, gap) + "\n")
	b.WriteString("  " + strings.Join(tags, gap) + "\n")

	for r, row := range view.Rows {
		marker := "  "
		if row.Selected {
			marker = m.styles.selected.Render("● ")
		}
		cells := make([]string, 0, last-first+1)
		for i := first; i <= last; i++ {
			cell := pad(row.Cells[i], widths[i])
			if r == m.row && i == m.col {
				cell = m.styles.cursor.Render(cell)
			} else if row.Selected {
				cell = m.styles.selected.Render(cell)
			}
			cells = append(cells, cell)
		}
		b.WriteString(marker + strings.Join(cells, gap) + "\n")
	}
	if len(view.Rows) == 0 {
		b.WriteString("  (no rows)\n")
	}
	return b.String()
}

// visibleRange picks the columns that fit the terminal width, starting at
// the scroll offset and always including the cursor column.
func (m Model) visibleRange(widths []int) (int, int) {
	first := min(m.colOffset, len(widths)-1)
	if m.col > first {
		// scroll right until the cursor column fits
		for first < m.col && spanWidth(widths, first, m.col) > m.width-2 {
			first++
		}
	}
	last := first
	for last+1 < len(widths) && spanWidth(widths, first, last+1) <= m.width-2 {
		last++
	}
	return first, max(last, min(m.col, len(widths)-1))
}

func spanWidth(widths []int, from, to int) int {
	total := 0
	for i := from; i <= to; i++ {
		total += widths[i]
		if i > from {
			total += colGap
		}
	}
	return total
}

func columnWidths(view grid.View) []int {
	widths := make([]int, len(view.Columns))
	for i, col := range view.Columns {
		w := runewidth.StringWidth(col.Key) + 2
		if col.Typed() {
			w = max(w, runewidth.StringWidth(col.DeclaredType.Label()))
		}
		for _, row := range view.Rows {
			w = max(w, runewidth.StringWidth(row.Cells[i]))
		}
		widths[i] = clamp(w, minCellWidth, maxCellWidth)
	}
	return widths
}

// pad truncates s to width display cells and fills the remainder.
func pad(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

func (m Model) renderMenu() string {
	var b strings.Builder
	fmt.Fprintf(&b, "type of %s\n", m.menuCol)
	for i, o := range m.menu {
		line := "  " + o.Label
		if o.Active {
			line += " (current)"
		}
		if i == m.menuIndex {
			line = m.styles.cursor.Render(line)
		}
		b.WriteString(line)
		if i < len(m.menu)-1 {
			b.WriteString("\n")
		}
	}
	return m.styles.menu.Render(b.String())
}

func (m Model) renderNote(n grid.Notification) string {
	text := n.Title
	if n.Description != "" {
		text += ": " + n.Description
	}
	switch n.Level {
	case grid.LevelSuccess:
		return m.styles.success.Render(text)
	case grid.LevelError:
		return m.styles.failure.Render(text)
	default:
		return m.styles.info.Render(text)
	}
}
