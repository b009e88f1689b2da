package grid

import "framegrid/internal/dtype"

// ColumnSource is the schema part of a page response. It is either
// TypedColumns (the dtype map) or NamedColumns (a plain key list).
type ColumnSource interface {
	keys() []string
}

// TypedColumn pairs a column key with its declared type.
type TypedColumn struct {
	Key  string
	Type dtype.Tag
}

// TypedColumns is the dtype-map shape, already in display order.
type TypedColumns []TypedColumn

func (c TypedColumns) keys() []string {
	out := make([]string, len(c))
	for i, col := range c {
		out[i] = col.Key
	}
	return out
}

// Types returns the column types as a map.
func (c TypedColumns) Types() map[string]dtype.Tag {
	out := make(map[string]dtype.Tag, len(c))
	for _, col := range c {
		out[col.Key] = col.Type
	}
	return out
}

// NamedColumns is the reduced shape: column keys with no type metadata.
type NamedColumns []string

func (c NamedColumns) keys() []string {
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// Column is a render-ready column descriptor. Descriptors are rebuilt for
// every schema snapshot and never modified afterwards.
type Column struct {
	Key          string
	DeclaredType dtype.Tag
	Renderer     CellRenderer
	// Menu is nil when the schema carried no type metadata.
	Menu *TypeMenu
}

// Typed reports whether the column offers a type-change affordance.
func (c Column) Typed() bool { return c.Menu != nil }

// TypeOption is one entry of a column's type menu.
type TypeOption struct {
	Tag    dtype.Tag
	Label  string
	Active bool
}

// TypeMenu is the header affordance listing every tag for one column.
type TypeMenu struct {
	column  string
	options []TypeOption
}

// Options returns a copy of the menu entries in tag order.
func (m *TypeMenu) Options() []TypeOption {
	out := make([]TypeOption, len(m.options))
	copy(out, m.options)
	return out
}

// Select returns the coercion intent for choosing tag on this column.
func (m *TypeMenu) Select(tag dtype.Tag) (Intent, error) {
	for _, opt := range m.options {
		if opt.Tag == tag {
			return CoerceColumn(m.column, tag), nil
		}
	}
	return Intent{}, &unknownTagError{tag: tag}
}

type unknownTagError struct{ tag dtype.Tag }

func (e *unknownTagError) Error() string { return "grid: unknown dtype " + string(e.tag) }

func newTypeMenu(key string, current dtype.Tag) *TypeMenu {
	tags := dtype.All()
	opts := make([]TypeOption, len(tags))
	for i, tag := range tags {
		opts[i] = TypeOption{
			Tag:    tag,
			Label:  tag.Label(),
			Active: string(tag) == string(current),
		}
	}
	return &TypeMenu{column: key, options: opts}
}

// Project builds the descriptor list for a schema snapshot, one descriptor per
// key in source order. A nil source yields an empty list.
func Project(src ColumnSource) []Column {
	switch s := src.(type) {
	case TypedColumns:
		out := make([]Column, len(s))
		for i, col := range s {
			out[i] = Column{
				Key:          col.Key,
				DeclaredType: col.Type,
				Renderer:     FormatCell,
				Menu:         newTypeMenu(col.Key, col.Type),
			}
		}
		return out
	case NamedColumns:
		out := make([]Column, len(s))
		for i, key := range s {
			out[i] = Column{Key: key, Renderer: FormatCell}
		}
		return out
	default:
		return []Column{}
	}
}
