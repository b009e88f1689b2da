package grid

import (
	"fmt"

	"framegrid/internal/dtype"
)

// IntentKind names the server-side mutation an Intent requests.
type IntentKind int

const (
	IntentCoerce IntentKind = iota + 1
	IntentFindReplace
	IntentUndo
)

func (k IntentKind) String() string {
	switch k {
	case IntentCoerce:
		return "coerce_column"
	case IntentFindReplace:
		return "find_replace"
	case IntentUndo:
		return "undo"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Intent is a request to change the remote dataset.
type Intent struct {
	Kind    IntentKind
	Column  string
	Target  dtype.Tag
	Pattern string
}

// CoerceColumn requests that column be reinterpreted as target.
func CoerceColumn(column string, target dtype.Tag) Intent {
	return Intent{Kind: IntentCoerce, Column: column, Target: target}
}

// FindReplace requests a server-side find/replace. The pattern is passed to
// the service unchanged.
func FindReplace(pattern string) Intent {
	return Intent{Kind: IntentFindReplace, Pattern: pattern}
}

// Undo requests reversal of the most recent recorded mutation.
func Undo() Intent { return Intent{Kind: IntentUndo} }
