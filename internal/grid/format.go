package grid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"framegrid/internal/dtype"
)

// CellRenderer turns a raw cell value into display text.
type CellRenderer func(value any) string

// FormatCell is the default CellRenderer. Complex records render as
// <real><sign><imag>j; nil renders as the empty string; everything else uses
// its natural string form.
func FormatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case dtype.ComplexValue:
		return v.String()
	case map[string]any:
		if re, im, ok := complexParts(v); ok {
			return dtype.FormatComplex(re, im)
		}
		return marshalText(v)
	case []any:
		return marshalText(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// complexParts extracts the real and imaginary parts of a decoded complex
// record. Both fields must be present and numeric.
func complexParts(m map[string]any) (float64, float64, bool) {
	if len(m) != 2 {
		return 0, 0, false
	}
	re, ok := numeric(m["real"])
	if !ok {
		return 0, 0, false
	}
	im, ok := numeric(m["imag"])
	if !ok {
		return 0, 0, false
	}
	return re, im, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func marshalText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
