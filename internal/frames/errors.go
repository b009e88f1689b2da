package frames

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoHistory reports an undo with nothing to restore.
	ErrNoHistory = errors.New("frames: no previous versions to undo")
	// ErrEmptyFind reports a find/replace without a search string.
	ErrEmptyFind = errors.New("frames: find string is empty")
	// ErrUnsupportedFile reports an upload whose extension is not a spreadsheet.
	ErrUnsupportedFile = errors.New("frames: unsupported file type")
)

// ValidationError carries field-level reasons. Reasons keyed by "" apply to
// the field itself; other keys name a sub-field such as a column.
type ValidationError struct {
	Field   string
	Reasons map[string][]string
	Err     error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Reasons))
	for k := range e.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msg := strings.Join(e.Reasons[k], "; ")
		if k != "" {
			msg = k + ": " + msg
		}
		parts = append(parts, msg)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Add appends a reason under key.
func (e *ValidationError) Add(key, reason string) {
	if e.Reasons == nil {
		e.Reasons = make(map[string][]string)
	}
	e.Reasons[key] = append(e.Reasons[key], reason)
}

func (e *ValidationError) empty() bool { return len(e.Reasons) == 0 }

func fieldError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reasons: map[string][]string{"": {reason}}, Err: err}
}
