// Package tui renders a grid.Controller in the terminal with bubbletea. All
// remote work runs in commands so the event loop never blocks; the
// controller's own sequencing decides which response is shown.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"framegrid/internal/dtype"
	"framegrid/internal/grid"
)

// DefaultOpTimeout bounds each remote operation started from the UI.
const DefaultOpTimeout = 30 * time.Second

type mode int

const (
	modeBrowse mode = iota
	modeFind
	modeFilter
	modeTypeMenu
)

type (
	opDoneMsg struct {
		op  string
		err error
	}
	changedMsg struct{}
	noteMsg    grid.Notification
)

// Model is the bubbletea model for one dataset.
type Model struct {
	ctrl    *grid.Controller
	bridge  *Bridge
	keys    keyMap
	help    help.Model
	input   textinput.Model
	styles  styles
	timeout time.Duration

	mode      mode
	row, col  int
	colOffset int
	menu      []grid.TypeOption
	menuCol   string
	menuIndex int
	note      *grid.Notification
	lastErr   error
	width     int
	height    int
}

// Option configures a Model.
type Option func(*Model)

// WithOpTimeout overrides DefaultOpTimeout.
func WithOpTimeout(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New builds a model around ctrl. bridge must be the one wired into ctrl.
func New(ctrl *grid.Controller, bridge *Bridge, opts ...Option) Model {
	in := textinput.New()
	in.CharLimit = 256
	m := Model{
		ctrl:    ctrl,
		bridge:  bridge,
		keys:    defaultKeyMap(),
		help:    help.New(),
		input:   in,
		styles:  defaultStyles(),
		timeout: DefaultOpTimeout,
		width:   100,
		height:  24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the first page load and the bridge listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.run("load", m.ctrl.Reload), m.waitForChange(), m.waitForNote())
}

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) navigate(op string, fn func(context.Context) (bool, error)) tea.Cmd {
	return m.run(op, func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	})
}

func (m Model) waitForChange() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	ch := m.bridge.changes
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m Model) waitForNote() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	ch := m.bridge.notes
	return func() tea.Msg {
		return noteMsg(<-ch)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case changedMsg:
		m.clampCursor()
		return m, m.waitForChange()
	case noteMsg:
		n := grid.Notification(msg)
		m.note = &n
		return m, m.waitForNote()
	case opDoneMsg:
		m.lastErr = msg.err
		m.clampCursor()
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeFind, modeFilter:
			return m.updatePrompt(msg)
		case modeTypeMenu:
			return m.updateMenu(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	view := m.ctrl.View()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		m.row--
	case key.Matches(msg, m.keys.Down):
		m.row++
	case key.Matches(msg, m.keys.Left):
		m.col--
	case key.Matches(msg, m.keys.Right):
		m.col++
	case key.Matches(msg, m.keys.NextPage):
		if m.ctrl.CanNext() {
			return m, m.navigate("next", m.ctrl.Next)
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.ctrl.CanPrevious() {
			return m, m.navigate("previous", m.ctrl.Previous)
		}
	case key.Matches(msg, m.keys.Reload):
		return m, m.run("load", m.ctrl.Reload)
	case key.Matches(msg, m.keys.TypeMenu):
		col, ok := m.focused(view)
		if !ok || !col.Typed() || !m.ctrl.CanMutate() {
			return m, nil
		}
		m.mode = modeTypeMenu
		m.menu = col.Menu.Options()
		m.menuCol = col.Key
		m.menuIndex = 0
		for i, o := range m.menu {
			if o.Active {
				m.menuIndex = i
			}
		}
	case key.Matches(msg, m.keys.Find):
		if !m.ctrl.CanMutate() {
			return m, nil
		}
		m.mode = modeFind
		m.input.Placeholder = "find:replace"
		m.input.Prompt = "find/replace> "
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Undo):
		if !m.ctrl.CanMutate() {
			return m, nil
		}
		return m, m.run("undo", m.ctrl.Undo)
	case key.Matches(msg, m.keys.Sort):
		if col, ok := m.focused(view); ok {
			m.ctrl.ToggleSort(col.Key)
		}
	case key.Matches(msg, m.keys.Filter):
		col, ok := m.focused(view)
		if !ok {
			return m, nil
		}
		m.mode = modeFilter
		m.menuCol = col.Key
		m.input.Placeholder = "substring"
		m.input.Prompt = "filter " + col.Key + "> "
		m.input.SetValue(m.ctrl.Overlay().Filters[col.Key])
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Hide):
		if col, ok := m.focused(view); ok && len(view.Columns) > 1 {
			m.ctrl.SetVisible(col.Key, false)
		}
	case key.Matches(msg, m.keys.ShowAll):
		for _, col := range m.ctrl.Snapshot().Columns {
			m.ctrl.SetVisible(col.Key, true)
		}
	case key.Matches(msg, m.keys.Select):
		if m.row >= 0 && m.row < len(view.Rows) {
			m.ctrl.ToggleSelected(view.Rows[m.row].Index)
		}
	case key.Matches(msg, m.keys.Cancel):
		m.note = nil
	}
	m.clampCursor()
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		value := m.input.Value()
		current := m.mode
		m.mode = modeBrowse
		m.input.Blur()
		if current == modeFilter {
			m.ctrl.SetFilter(m.menuCol, value)
			m.clampCursor()
			return m, nil
		}
		if value == "" {
			return m, nil
		}
		return m, m.run("find", func(ctx context.Context) error {
			return m.ctrl.FindReplace(ctx, value)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeBrowse
	case key.Matches(msg, m.keys.Up):
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.menuIndex < len(m.menu)-1 {
			m.menuIndex++
		}
	case key.Matches(msg, m.keys.Confirm):
		m.mode = modeBrowse
		if m.menuIndex >= len(m.menu) || m.menu[m.menuIndex].Active {
			return m, nil
		}
		column, target := m.menuCol, m.menu[m.menuIndex].Tag
		return m, m.run("coerce", func(ctx context.Context) error {
			return m.ctrl.Apply(ctx, grid.CoerceColumn(column, target))
		})
	}
	return m, nil
}

func (m Model) focused(view grid.View) (grid.Column, bool) {
	if m.col < 0 || m.col >= len(view.Columns) {
		return grid.Column{}, false
	}
	return view.Columns[m.col], true
}

func (m *Model) clampCursor() {
	view := m.ctrl.View()
	m.row = clamp(m.row, 0, len(view.Rows)-1)
	m.col = clamp(m.col, 0, len(view.Columns)-1)
	if m.col < m.colOffset {
		m.colOffset = m.col
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}

// MenuTarget returns the tag under the type-menu cursor, if the menu is open.
func (m Model) MenuTarget() (dtype.Tag, bool) {
	if m.mode != modeTypeMenu || m.menuIndex >= len(m.menu) {
		return "", false
	}
	return m.menu[m.menuIndex].Tag, true
}

// Err returns the error of the most recent operation.
func (m Model) Err() error { return m.lastErr }
