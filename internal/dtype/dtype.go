// Package dtype defines the fixed set of column type tags understood by the
// dataframe service and the grid, together with cell conversion and inference.
package dtype

import (
	"fmt"
	"strings"
)

// Tag is the declared type of a column. The string form is the wire value.
type Tag string

const (
	Object     Tag = "object"
	Int64      Tag = "Int64"
	Int32      Tag = "Int32"
	Int16      Tag = "Int16"
	Int8       Tag = "Int8"
	Float64    Tag = "float64"
	Float32    Tag = "float32"
	Bool       Tag = "bool"
	Datetime   Tag = "datetime64[ns]"
	DatetimeTZ Tag = "timedelta64[ns]" // wire value kept for compatibility with existing clients
	Category   Tag = "category"
	Complex    Tag = "complex"
)

// all lists every tag in menu order.
var all = []Tag{Object, Int64, Int32, Int16, Int8, Float64, Float32, Bool, Datetime, DatetimeTZ, Category, Complex}

var labels = map[Tag]string{
	Object:     "Text",
	Int64:      "Big Number",
	Int32:      "Medium Number",
	Int16:      "Small Number",
	Int8:       "Extra Small Number",
	Float64:    "Big Float",
	Float32:    "Small Float",
	Bool:       "Boolean",
	Datetime:   "Date",
	DatetimeTZ: "Date with timezone",
	Category:   "Categorical",
	Complex:    "Complex",
}

// All returns every known tag in display order. The caller owns the slice.
func All() []Tag {
	out := make([]Tag, len(all))
	copy(out, all)
	return out
}

// Label returns the human readable name of the tag, or the raw tag when unknown.
func (t Tag) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports whether t belongs to the fixed tag set.
func (t Tag) Valid() bool {
	_, ok := labels[t]
	return ok
}

// Bits returns the storage width of integer and float tags, 0 otherwise.
func (t Tag) Bits() int {
	switch t {
	case Int64, Float64:
		return 64
	case Int32, Float32:
		return 32
	case Int16:
		return 16
	case Int8:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether t is one of the signed integer widths.
func (t Tag) IsInteger() bool {
	return t == Int64 || t == Int32 || t == Int16 || t == Int8
}

// IsFloat reports whether t is one of the float widths.
func (t Tag) IsFloat() bool { return t == Float64 || t == Float32 }

// IsTemporal reports whether t holds timestamps.
func (t Tag) IsTemporal() bool { return t == Datetime || t == DatetimeTZ }

// Parse resolves a wire value into a Tag. Matching is exact first, then
// case-insensitive so that hand-written requests such as "int64" still resolve.
func Parse(s string) (Tag, error) {
	t := Tag(strings.TrimSpace(s))
	if t.Valid() {
		return t, nil
	}
	for _, candidate := range all {
		if strings.EqualFold(string(candidate), string(t)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unknown dtype %q", s)
}
