package catalog

import (
	"testing"
	"time"

	"framegrid/internal/dtype"
)

func TestRecordHistory(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{FileKey: "content/1/v0.csv", DTypes: map[string]dtype.Tag{"a": dtype.Int64}}
	if _, ok := rec.Pop(); ok {
		t.Fatalf("pop on empty history should report false")
	}
	rec.Push(KindCoerce, now)
	rec.DTypes["a"] = dtype.Float64
	rec.Push(KindFindReplace, now)
	rec.FileKey = "content/1/v2.csv"

	last, ok := rec.Pop()
	if !ok || last.Kind != KindFindReplace {
		t.Fatalf("unexpected pop %+v", last)
	}
	if rec.FileKey != "content/1/v0.csv" || rec.DTypes["a"] != dtype.Float64 {
		t.Fatalf("unexpected state after first pop %+v", rec)
	}
	if _, ok := rec.Pop(); !ok || rec.DTypes["a"] != dtype.Int64 {
		t.Fatalf("second pop did not restore dtypes: %+v", rec.DTypes)
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := Record{Columns: []string{"a"}, DTypes: map[string]dtype.Tag{"a": dtype.Object}}
	rec.Push(KindUpload, time.Now())
	cp := rec.Clone()
	cp.Columns[0] = "b"
	cp.DTypes["a"] = dtype.Bool
	cp.History[0].DTypes["a"] = dtype.Bool
	if rec.Columns[0] != "a" || rec.DTypes["a"] != dtype.Object || rec.History[0].DTypes["a"] != dtype.Object {
		t.Fatalf("clone shares state with original")
	}
}
