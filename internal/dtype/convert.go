package dtype

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ConversionError reports a cell that cannot be represented under a tag.
type ConversionError struct {
	Value  string
	Target Tag
	Reason string
}

func (e *ConversionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%q cannot be converted to %s", e.Value, e.Target)
	}
	return fmt.Sprintf("%q cannot be converted to %s: %s", e.Value, e.Target, e.Reason)
}

// missing holds the spellings treated as an absent value.
var missing = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {}, "None": {},
}

// IsMissing reports whether raw denotes an absent cell.
func IsMissing(raw string) bool {
	_, ok := missing[strings.TrimSpace(raw)]
	return ok
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
}

// Convert parses a raw cell under tag t. Missing cells convert to nil for every
// tag. The returned value is one of int64, float64, float32, bool, time.Time,
// ComplexValue or string. float32 cells stay float32 so they encode at 32-bit
// precision.
func Convert(raw string, t Tag) (any, error) {
	if IsMissing(raw) {
		return nil, nil
	}
	s := strings.TrimSpace(raw)
	switch {
	case t.IsInteger():
		return parseInt(s, t)
	case t.IsFloat():
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return nil, &ConversionError{Value: raw, Target: t, Reason: "not a number"}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		if t.Bits() == 32 {
			return float32(f), nil
		}
		return f, nil
	case t == Bool:
		b, ok := parseBool(s)
		if !ok {
			return nil, &ConversionError{Value: raw, Target: t, Reason: "not a boolean"}
		}
		return b, nil
	case t.IsTemporal():
		ts, ok := ParseTime(s)
		if !ok {
			return nil, &ConversionError{Value: raw, Target: t, Reason: "not a date"}
		}
		if t == Datetime {
			ts = ts.UTC()
		}
		return ts, nil
	case t == Complex:
		c, err := parseComplex(s)
		if err != nil {
			return nil, &ConversionError{Value: raw, Target: t, Reason: "not a complex number"}
		}
		if !finite(c.Real) || !finite(c.Imag) {
			return nil, &ConversionError{Value: raw, Target: t, Reason: "not a finite complex number"}
		}
		return c, nil
	case t == Object, t == Category:
		return raw, nil
	default:
		return nil, &ConversionError{Value: raw, Target: t, Reason: "unknown dtype"}
	}
}

func parseInt(s string, t Tag) (any, error) {
	n, err := strconv.ParseInt(s, 10, t.Bits())
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		return nil, &ConversionError{Value: s, Target: t, Reason: fmt.Sprintf("out of range for %d-bit integer", t.Bits())}
	}
	// integral floats such as "3.0" are accepted
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != math.Trunc(f) {
		return nil, &ConversionError{Value: s, Target: t, Reason: "not an integer"}
	}
	limit := math.Ldexp(1, t.Bits()-1)
	if f < -limit || f >= limit {
		return nil, &ConversionError{Value: s, Target: t, Reason: fmt.Sprintf("out of range for %d-bit integer", t.Bits())}
	}
	return int64(f), nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y":
		return true, true
	case "false", "f", "0", "no", "n":
		return false, true
	}
	return false, false
}

// ParseTime tries the accepted timestamp layouts in order.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
