package grid

import (
	"sort"
	"strings"
)

// SortDirection orders the loaded page for display.
type SortDirection int

const (
	SortNone SortDirection = iota
	SortAscending
	SortDescending
)

func (d SortDirection) String() string {
	switch d {
	case SortAscending:
		return "asc"
	case SortDescending:
		return "desc"
	default:
		return "none"
	}
}

// SortState names the sorted column; Column is empty when unsorted.
type SortState struct {
	Column    string
	Direction SortDirection
}

// IsSorted reports whether the state represents an active sort.
func (s SortState) IsSorted() bool { return s.Column != "" && s.Direction != SortNone }

// Overlay holds presentation state layered over the loaded page. It never
// changes the committed rows; it only decides which rows and columns a view
// shows and in what order.
type Overlay struct {
	Sort     SortState
	Filters  map[string]string
	Hidden   map[string]bool
	Selected map[int]bool
}

func newOverlay() Overlay {
	return Overlay{
		Filters:  make(map[string]string),
		Hidden:   make(map[string]bool),
		Selected: make(map[int]bool),
	}
}

func (o Overlay) clone() Overlay {
	out := newOverlay()
	out.Sort = o.Sort
	for k, v := range o.Filters {
		out.Filters[k] = v
	}
	for k, v := range o.Hidden {
		out.Hidden[k] = v
	}
	for k, v := range o.Selected {
		out.Selected[k] = v
	}
	return out
}

// ViewRow is a displayed row with its index in the committed page.
type ViewRow struct {
	Index    int
	Cells    []string
	Selected bool
}

// View is the rendered projection of a snapshot under an overlay.
type View struct {
	Columns []Column
	Rows    []ViewRow
	Page    PageState
	Sort    SortState
	Status  Status
	Busy    bool
}

// apply renders the snapshot: hidden columns are dropped, filters keep rows
// whose formatted cell contains the filter text (case-insensitive), and the
// sort is stable so equal keys keep server order.
func (o Overlay) apply(columns []Column, rows []Row) ([]Column, []ViewRow) {
	visible := make([]Column, 0, len(columns))
	for _, col := range columns {
		if !o.Hidden[col.Key] {
			visible = append(visible, col)
		}
	}
	byKey := make(map[string]Column, len(columns))
	for _, col := range columns {
		byKey[col.Key] = col
	}

	idx := make([]int, 0, len(rows))
	for i, row := range rows {
		if o.matches(byKey, row) {
			idx = append(idx, i)
		}
	}
	if o.Sort.IsSorted() {
		if _, ok := byKey[o.Sort.Column]; ok {
			key := o.Sort.Column
			desc := o.Sort.Direction == SortDescending
			sort.SliceStable(idx, func(a, b int) bool {
				va, vb := rows[idx[a]][key], rows[idx[b]][key]
				if va == nil || vb == nil {
					return va != nil && vb == nil
				}
				c := compareCells(va, vb)
				if desc {
					return c > 0
				}
				return c < 0
			})
		}
	}

	out := make([]ViewRow, len(idx))
	for i, ri := range idx {
		cells := make([]string, len(visible))
		for j, col := range visible {
			cells[j] = col.Renderer(rows[ri][col.Key])
		}
		out[i] = ViewRow{Index: ri, Cells: cells, Selected: o.Selected[ri]}
	}
	return visible, out
}

func (o Overlay) matches(byKey map[string]Column, row Row) bool {
	for key, needle := range o.Filters {
		if needle == "" {
			continue
		}
		col, ok := byKey[key]
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(col.Renderer(row[key])), strings.ToLower(needle)) {
			return false
		}
	}
	return true
}

// compareCells orders nil last, numbers numerically, and everything else by
// formatted text.
func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := numeric(a); ok {
		if fb, ok := numeric(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(FormatCell(a), FormatCell(b))
}
