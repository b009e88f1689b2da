// Package catalog defines the dataset records the service keeps and the
// persistence contract every storage backend satisfies.
package catalog

import (
	"context"
	"errors"
	"time"

	"framegrid/internal/dtype"
)

// ErrNotFound reports a missing dataset record.
var ErrNotFound = errors.New("catalog: record not found")

// VersionKind names the mutation that produced a version.
type VersionKind string

const (
	KindUpload      VersionKind = "upload"
	KindCoerce      VersionKind = "coerce"
	KindFindReplace VersionKind = "find_replace"
)

// Version is one entry of a dataset's undo history: the state the dataset
// was in before the mutation of the given kind was applied.
type Version struct {
	FileKey   string               `json:"file_key"`
	DTypes    map[string]dtype.Tag `json:"dtypes"`
	Kind      VersionKind          `json:"kind"`
	CreatedAt time.Time            `json:"created_at"`
}

// Record is one uploaded dataset.
type Record struct {
	ID        int64                `json:"id"`
	Title     string               `json:"title"`
	FileKey   string               `json:"file_key"`
	FileName  string               `json:"file_name"`
	Columns   []string             `json:"columns"`
	DTypes    map[string]dtype.Tag `json:"dtypes"`
	History   []Version            `json:"history"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	cp.Columns = append([]string(nil), r.Columns...)
	cp.DTypes = CloneTypes(r.DTypes)
	if r.History != nil {
		cp.History = make([]Version, len(r.History))
		for i, v := range r.History {
			v.DTypes = CloneTypes(v.DTypes)
			cp.History[i] = v
		}
	}
	return cp
}

// Push records the current file and dtypes as an undo point.
func (r *Record) Push(kind VersionKind, at time.Time) {
	r.History = append(r.History, Version{
		FileKey:   r.FileKey,
		DTypes:    CloneTypes(r.DTypes),
		Kind:      kind,
		CreatedAt: at,
	})
}

// Pop restores the most recent undo point and returns it. It reports false
// when the history is empty.
func (r *Record) Pop() (Version, bool) {
	if len(r.History) == 0 {
		return Version{}, false
	}
	last := r.History[len(r.History)-1]
	r.History = r.History[:len(r.History)-1]
	r.FileKey = last.FileKey
	r.DTypes = CloneTypes(last.DTypes)
	return last, true
}

// CloneTypes copies a dtype map.
func CloneTypes(in map[string]dtype.Tag) map[string]dtype.Tag {
	if in == nil {
		return nil
	}
	out := make(map[string]dtype.Tag, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store persists dataset records. Implementations assign IDs on Create and
// apply Update functions atomically: a returned error leaves the record
// unchanged.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Update(ctx context.Context, id int64, fn func(*Record) error) (Record, error)
	Delete(ctx context.Context, id int64) (Record, error)
}
