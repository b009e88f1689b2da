package grid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"framegrid/internal/dtype"
)

// Row maps column keys to raw cell values: string, number (json.Number,
// float64 or int64), bool, nil, or a complex record.
type Row map[string]any

// Page is one decoded page response from the dataset service.
type Page struct {
	Rows        []Row
	Columns     ColumnSource
	CurrentPage int
	TotalPages  int
}

// Remote is the dataset service contract the controller drives.
type Remote interface {
	FetchPage(ctx context.Context, ref string, page, pageSize int) (Page, error)
	CoerceColumns(ctx context.Context, ref string, dtypes map[string]dtype.Tag) error
	FindReplace(ctx context.Context, ref string, input string) error
	Undo(ctx context.Context, ref string) error
}

// ErrorKind classifies failures reported by a Remote.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindValidation
	KindEmptyHistory
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindEmptyHistory:
		return "empty_history"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// RemoteError is the error shape Remote implementations return so the
// controller can pick the right notification.
type RemoteError struct {
	Kind   ErrorKind
	Op     string
	Status int
	// Fields carries per-field (or per-column) reasons supplied by the service.
	Fields map[string][]string
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrEmptyHistory) match empty-history remote errors.
func (e *RemoteError) Is(target error) bool {
	return target == ErrEmptyHistory && e.Kind == KindEmptyHistory
}

// Reason returns the most specific explanation the service gave, preferring
// the entry for field, then the detail text. It returns "" when none was given.
func (e *RemoteError) Reason(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return strings.Join(parts, ", ")
}

var (
	// ErrEmptyHistory is reported by Undo when nothing is recorded.
	ErrEmptyHistory = errors.New("grid: nothing to undo")
	// ErrMutationInFlight rejects a mutation while another is outstanding.
	ErrMutationInFlight = errors.New("grid: mutation already in progress")
	// ErrNoTypeMetadata rejects dtype changes when the schema carries no types.
	ErrNoTypeMetadata = errors.New("grid: column types are not available for this dataset")
	// ErrUnknownColumn rejects intents naming a column absent from the schema.
	ErrUnknownColumn = errors.New("grid: unknown column")
)

// KindOf classifies any error returned by a Remote. Errors that are not
// RemoteErrors count as transport failures.
func KindOf(err error) ErrorKind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransport
}
