package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"

	"framegrid/internal/dtype"
	"framegrid/internal/grid"
)

type stubRemote struct {
	mu      sync.Mutex
	coerced map[string]dtype.Tag
	finds   []string
	undos   int
}

func (s *stubRemote) FetchPage(_ context.Context, _ string, page, _ int) (grid.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ageType := dtype.Int64
	if t, ok := s.coerced["age"]; ok {
		ageType = t
	}
	return grid.Page{
		Columns: grid.TypedColumns{{Key: "name", Type: dtype.Object}, {Key: "age", Type: ageType}},
		Rows: []grid.Row{
			{"name": "ann", "age": float64(30 + page)},
			{"name": "bob", "age": float64(20 + page)},
		},
		CurrentPage: page,
		TotalPages:  3,
	}, nil
}

func (s *stubRemote) CoerceColumns(_ context.Context, _ string, types map[string]dtype.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coerced = types
	return nil
}

func (s *stubRemote) FindReplace(_ context.Context, _ string, input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = append(s.finds, input)
	return nil
}

func (s *stubRemote) Undo(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undos++
	return nil
}

func newModel(t *testing.T) (Model, *stubRemote, *grid.Controller) {
	t.Helper()
	remote := &stubRemote{}
	bridge := NewBridge()
	ctrl := grid.New("7", remote, grid.WithNotifier(bridge), grid.WithOnChange(bridge.Changed))
	m := New(ctrl, bridge)
	// a blinking cursor returns commands that sleep
	m.input.Cursor.SetMode(cursor.CursorStatic)
	if err := ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return m, remote, ctrl
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// press sends msg and executes the returned command synchronously, feeding
// an operation result back into the model.
func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd != nil {
		if out, ok := cmd().(opDoneMsg); ok {
			next, _ = m.Update(out)
			m = next.(Model)
		}
	}
	return m
}

func TestViewRendersHeaderAndFooter(t *testing.T) {
	m, _, _ := newModel(t)
	out := m.View()
	for _, want := range []string{"name", "age", "Big Number", "ann", "1 of 3 pages"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestPageNavigation(t *testing.T) {
	m, _, ctrl := newModel(t)
	m = press(t, m, runes("n"))
	if got := ctrl.Snapshot().Page.CurrentPage; got != 2 {
		t.Fatalf("expected page 2, got %d", got)
	}
	m = press(t, m, runes("p"))
	m = press(t, m, runes("p"))
	if got := ctrl.Snapshot().Page.CurrentPage; got != 1 {
		t.Fatalf("expected page 1, got %d", got)
	}
	if !strings.Contains(m.View(), "1 of 3 pages") {
		t.Fatalf("footer not updated")
	}
}

func TestTypeMenuCoercesFocusedColumn(t *testing.T) {
	m, remote, ctrl := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, runes("t"))
	if tag, ok := m.MenuTarget(); !ok || tag != dtype.Int64 {
		t.Fatalf("menu should open on the current type, got %s %v", tag, ok)
	}
	for {
		tag, _ := m.MenuTarget()
		if tag == dtype.Float64 {
			break
		}
		m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Err() != nil {
		t.Fatalf("coerce: %v", m.Err())
	}
	if remote.coerced["age"] != dtype.Float64 || remote.coerced["name"] != dtype.Object {
		t.Fatalf("unexpected dtypes sent %v", remote.coerced)
	}
	if got := ctrl.Snapshot().Columns[1].DeclaredType; got != dtype.Float64 {
		t.Fatalf("snapshot not reloaded, got %s", got)
	}
}

func TestFindPromptPassesInputThrough(t *testing.T) {
	m, remote, _ := newModel(t)
	m = press(t, m, runes("/"))
	for _, r := range "ann:anne" {
		m = press(t, m, runes(string(r)))
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(remote.finds) != 1 || remote.finds[0] != "ann:anne" {
		t.Fatalf("unexpected find inputs %v", remote.finds)
	}
	m = press(t, m, runes("u"))
	if remote.undos != 1 {
		t.Fatalf("expected one undo, got %d", remote.undos)
	}
}

func TestOverlayKeys(t *testing.T) {
	m, _, ctrl := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, runes("s"))
	if v := ctrl.View(); v.Rows[0].Cells[0] != "bob" {
		t.Fatalf("expected ascending age sort, got %v", v.Rows)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if !ctrl.View().Rows[0].Selected {
		t.Fatalf("space should select the cursor row")
	}
	m = press(t, m, runes("v"))
	if cols := ctrl.View().Columns; len(cols) != 1 || cols[0].Key != "name" {
		t.Fatalf("expected age hidden, got %v", cols)
	}
	m = press(t, m, runes("V"))
	if len(ctrl.View().Columns) != 2 {
		t.Fatalf("expected all columns visible")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, runes("f"))
	m = press(t, m, runes("3"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if rows := ctrl.View().Rows; len(rows) != 1 || rows[0].Cells[0] != "ann" {
		t.Fatalf("expected filter on age, got %v", rows)
	}
}

func TestBridgeDeliversNotifications(t *testing.T) {
	m, _, _ := newModel(t)
	m.bridge.Notify(grid.Notification{Level: grid.LevelError, Title: "Failed to load data"})
	msg := m.waitForNote()()
	next, _ := m.Update(msg)
	if out := next.(Model).View(); !strings.Contains(out, "Failed to load data") {
		t.Fatalf("notification not rendered:\n%s", out)
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := newModel(t)
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
