package dtype

import (
	"strconv"
	"strings"
)

// categoryRatio is the distinct/total ratio under which text becomes categorical.
const categoryRatio = 0.5

// Infer picks a tag for a column of raw cells. Missing cells are ignored for
// every rule except the categorical ratio, which is measured over all cells.
func Infer(values []string) Tag {
	present := make([]string, 0, len(values))
	for _, v := range values {
		if !IsMissing(v) {
			present = append(present, strings.TrimSpace(v))
		}
	}
	if len(present) == 0 {
		return Object
	}
	if every(present, func(s string) bool {
		l := strings.ToLower(s)
		return l == "true" || l == "false"
	}) {
		return Bool
	}
	if every(present, func(s string) bool {
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	}) {
		return Int64
	}
	if every(present, func(s string) bool {
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	}) {
		return Float64
	}
	if every(present, func(s string) bool {
		_, ok := ParseTime(s)
		return ok
	}) {
		return Datetime
	}
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	if float64(len(distinct))/float64(len(values)) < categoryRatio {
		return Category
	}
	return Object
}

func every(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}
