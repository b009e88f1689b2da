package frames

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"framegrid/internal/blob"
	"framegrid/internal/catalog"
	"framegrid/internal/dtype"
	"framegrid/internal/infra/persistence/memory"
	"framegrid/internal/observability"
)

const peopleCSV = "name,age,score,joined\nann,31,1.5,2024-01-02\nbob,40,2,2024-02-03\ncid,,3.25,2024-03-04\n"

func newTestService(t *testing.T, opts ...Option) (*Service, blob.Store) {
	t.Helper()
	blobs := blob.NewMemory()
	return NewService(memory.NewStore(), blobs, opts...), blobs
}

func upload(t *testing.T, s *Service) catalog.Record {
	t.Helper()
	rec, err := s.Upload(context.Background(), "people", "people.csv", strings.NewReader(peopleCSV))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return rec
}

func TestUploadInfersTypes(t *testing.T) {
	s, blobs := newTestService(t)
	rec := upload(t, s)
	want := map[string]dtype.Tag{"name": dtype.Object, "age": dtype.Int64, "score": dtype.Float64, "joined": dtype.Datetime}
	for col, tag := range want {
		if rec.DTypes[col] != tag {
			t.Fatalf("column %s: expected %s, got %s", col, tag, rec.DTypes[col])
		}
	}
	if rec.FileKey != "content/1/v0.csv" {
		t.Fatalf("unexpected file key %s", rec.FileKey)
	}
	if _, err := blobs.Head(context.Background(), rec.FileKey); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}
	if got := string(OrderedDTypes(rec)); got != `{"name":"object","age":"Int64","score":"float64","joined":"datetime64[ns]"}` {
		t.Fatalf("unexpected ordered dtypes %s", got)
	}
}

func TestUploadValidation(t *testing.T) {
	s, _ := newTestService(t, WithMaxUploadBytes(16))
	ctx := context.Background()
	var verr *ValidationError
	if _, err := s.Upload(ctx, " ", "a.csv", strings.NewReader("a\n1\n")); !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title error, got %v", err)
	}
	if _, err := s.Upload(ctx, "t", "a.pdf", strings.NewReader("a\n1\n")); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
	if _, err := s.Upload(ctx, "t", "a.csv", strings.NewReader(peopleCSV)); !errors.As(err, &verr) || verr.Field != "file" {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestPageConvertsValues(t *testing.T) {
	s, _ := newTestService(t)
	rec := upload(t, s)
	page, err := s.Page(context.Background(), rec.ID, 1, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if page.TotalItems != 3 || page.TotalPages != 2 || page.CurrentPage != 1 || len(page.Rows) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	row := page.Rows[0]
	if row["age"] != int64(31) || row["score"] != 1.5 || row["joined"] != "2024-01-02T00:00:00Z" {
		t.Fatalf("unexpected row %#v", row)
	}
	last, err := s.Page(context.Background(), rec.ID, 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(last.Rows) != 1 || last.Rows[0]["age"] != nil {
		t.Fatalf("unexpected last page %#v", last.Rows)
	}
	beyond, err := s.Page(context.Background(), rec.ID, 9, 2)
	if err != nil || len(beyond.Rows) != 0 || beyond.CurrentPage != 9 {
		t.Fatalf("expected empty page past the end, got %+v %v", beyond, err)
	}
	var verr *ValidationError
	if _, err := s.Page(context.Background(), rec.ID, 0, 2); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for page 0, got %v", err)
	}
	if _, err := s.Page(context.Background(), 99, 1, 2); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCoerceAndUndo(t *testing.T) {
	s, _ := newTestService(t, WithClock(func() time.Time { return time.Unix(100, 0).UTC() }))
	ctx := context.Background()
	rec := upload(t, s)
	rec, err := s.Coerce(ctx, rec.ID, map[string]dtype.Tag{"age": dtype.Float64})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if rec.DTypes["age"] != dtype.Float64 || len(rec.History) != 1 || rec.History[0].Kind != catalog.KindCoerce {
		t.Fatalf("unexpected record %+v", rec)
	}
	page, _ := s.Page(ctx, rec.ID, 1, 10)
	if page.Rows[0]["age"] != 31.0 {
		t.Fatalf("expected float age, got %#v", page.Rows[0]["age"])
	}
	rec, err = s.Undo(ctx, rec.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if rec.DTypes["age"] != dtype.Int64 {
		t.Fatalf("undo did not restore dtype: %s", rec.DTypes["age"])
	}
	if _, err := s.Undo(ctx, rec.ID); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestCoerceReportsPerColumn(t *testing.T) {
	s, _ := newTestService(t)
	rec := upload(t, s)
	_, err := s.Coerce(context.Background(), rec.ID, map[string]dtype.Tag{
		"name":  dtype.Int64,
		"nope":  dtype.Bool,
		"score": dtype.Tag("decimal"),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "dtypes" {
		t.Fatalf("expected dtypes validation error, got %v", err)
	}
	if got := verr.Reasons["name"]; len(got) != 1 || got[0] != `row 1: "ann" is not an integer` {
		t.Fatalf("unexpected name reason %v", got)
	}
	if len(verr.Reasons["nope"]) != 1 || len(verr.Reasons["score"]) != 1 {
		t.Fatalf("unexpected reasons %v", verr.Reasons)
	}
	after, _ := s.Get(context.Background(), rec.ID)
	if len(after.History) != 0 {
		t.Fatalf("failed coercion must not record history")
	}
}

func TestCoerceRangeCheck(t *testing.T) {
	s, _ := newTestService(t)
	rec, err := s.Upload(context.Background(), "n", "n.csv", strings.NewReader("v\n1\n300\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var verr *ValidationError
	if _, err := s.Coerce(context.Background(), rec.ID, map[string]dtype.Tag{"v": dtype.Int8}); !errors.As(err, &verr) {
		t.Fatalf("expected range failure, got %v", err)
	}
	if _, err := s.Coerce(context.Background(), rec.ID, map[string]dtype.Tag{"v": dtype.Int16}); err != nil {
		t.Fatalf("Int16 should fit: %v", err)
	}
}

func TestCoerceRejectsInfiniteComplex(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rec, err := s.Upload(ctx, "n", "n.csv", strings.NewReader("v\n1\ninf\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var verr *ValidationError
	if _, err := s.Coerce(ctx, rec.ID, map[string]dtype.Tag{"v": dtype.Complex}); !errors.As(err, &verr) || len(verr.Reasons["v"]) == 0 {
		t.Fatalf("expected rejection for column v, got %v", err)
	}
	page, err := s.Page(ctx, rec.ID, 1, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if _, err := json.Marshal(page.Rows); err != nil {
		t.Fatalf("page must stay serialisable: %v", err)
	}
}

func TestFloat32PageValues(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rec, err := s.Upload(ctx, "n", "n.csv", strings.NewReader("v\n0.1\n2\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := s.Coerce(ctx, rec.ID, map[string]dtype.Tag{"v": dtype.Float32}); err != nil {
		t.Fatalf("coerce: %v", err)
	}
	page, err := s.Page(ctx, rec.ID, 1, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	b, err := json.Marshal(page.Rows)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `[{"v":0.1},{"v":2}]` {
		t.Fatalf("unexpected rows %s", b)
	}
}

func TestFindReplaceVersions(t *testing.T) {
	s, blobs := newTestService(t)
	ctx := context.Background()
	rec := upload(t, s)
	rec, err := s.FindReplace(ctx, rec.ID, "ann:anne")
	if err != nil {
		t.Fatalf("find/replace: %v", err)
	}
	if rec.FileKey != "content/1/v1.csv" || len(rec.History) != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	page, _ := s.Page(ctx, rec.ID, 1, 10)
	if page.Rows[0]["name"] != "anne" {
		t.Fatalf("replacement not visible: %#v", page.Rows[0])
	}
	if _, err := s.Undo(ctx, rec.ID); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := blobs.Head(ctx, "content/1/v1.csv"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("abandoned version should be deleted, got %v", err)
	}
	page, _ = s.Page(ctx, rec.ID, 1, 10)
	if page.Rows[0]["name"] != "ann" {
		t.Fatalf("undo not visible: %#v", page.Rows[0])
	}
	rec, err = s.FindReplace(ctx, rec.ID, "bob")
	if err != nil {
		t.Fatalf("delete-style find: %v", err)
	}
	if rec.FileKey != "content/1/v1.csv" {
		t.Fatalf("expected version key reuse after undo, got %s", rec.FileKey)
	}
}

func TestFindReplaceRejections(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	rec := upload(t, s)
	var verr *ValidationError
	if _, err := s.FindReplace(ctx, rec.ID, ":x"); !errors.As(err, &verr) || verr.Field != "input_string" || !errors.Is(err, ErrEmptyFind) {
		t.Fatalf("expected input_string error, got %v", err)
	}
	if _, err := s.FindReplace(ctx, rec.ID, "31:thirty-one"); !errors.As(err, &verr) {
		t.Fatalf("expected type-breaking replacement to be rejected, got %v", err)
	}
	same, err := s.FindReplace(ctx, rec.ID, "zzz:y")
	if err != nil || len(same.History) != 0 {
		t.Fatalf("no-match replacement should not create a version: %+v %v", same, err)
	}
}

func TestDeleteRemovesVersions(t *testing.T) {
	s, blobs := newTestService(t)
	ctx := context.Background()
	rec := upload(t, s)
	if _, err := s.FindReplace(ctx, rec.ID, "ann:anne"); err != nil {
		t.Fatalf("find/replace: %v", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	infos, _ := blobs.List(ctx, "content/")
	if len(infos) != 0 {
		t.Fatalf("expected versions removed, got %+v", infos)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceRecordsMetrics(t *testing.T) {
	rec := observability.NewExpvarRecorder("")
	s, _ := newTestService(t, WithMetrics(rec))
	r := upload(t, s)
	_, _ = s.Undo(context.Background(), r.ID)
	snap := rec.Snapshot()
	if snap.Results["frames.upload"]["success"] != 1 || snap.Results["frames.undo"]["error"] != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestOpenCatalog(t *testing.T) {
	ctx := context.Background()
	store, closeFn, err := OpenCatalog(ctx, StorageConfig{})
	if err != nil || store == nil {
		t.Fatalf("default catalog: %v", err)
	}
	_ = closeFn()
	store, closeFn, err = OpenCatalog(ctx, StorageConfig{Driver: StorageSQLite, SQLitePath: t.TempDir() + "/c.db"})
	if err != nil {
		t.Fatalf("sqlite catalog: %v", err)
	}
	if _, err := store.Create(ctx, catalog.Record{Title: "x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := OpenCatalog(ctx, StorageConfig{Driver: StoragePostgres}); err == nil {
		t.Fatalf("expected error without DSN")
	}
	if _, _, err := OpenCatalog(ctx, StorageConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
