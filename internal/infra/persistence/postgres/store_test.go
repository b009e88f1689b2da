package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"framegrid/internal/catalog"
	"framegrid/internal/dtype"
	"framegrid/internal/infra/persistence/postgres/testutil"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn, *sql.DB) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn, db
}

func TestStorePersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	store, conn, _ := openStub(t)
	rec, err := store.Create(ctx, catalog.Record{Title: "people", DTypes: map[string]dtype.Tag{"age": dtype.Int64}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rows := conn.Tables["state"]
	if len(rows) != 2 {
		t.Fatalf("expected records and next_id buckets, got %+v", rows)
	}
	var records map[int64]catalog.Record
	for _, row := range rows {
		if row["bucket"] == "records" {
			if err := json.Unmarshal(row["payload"].([]byte), &records); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
	}
	if records[rec.ID].Title != "people" {
		t.Fatalf("record not persisted: %+v", records)
	}
}

func TestStoreHydratesFromExistingSnapshot(t *testing.T) {
	ctx := context.Background()
	first, _, db := openStub(t)
	if _, err := first.Create(ctx, catalog.Record{Title: "kept"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	second, err := NewStore(ctx, "postgres://example/framegrid")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := second.Get(ctx, 1)
	if err != nil || got.Title != "kept" {
		t.Fatalf("expected hydrated record, got %+v %v", got, err)
	}
	next, _ := second.Create(ctx, catalog.Record{Title: "next"})
	if next.ID != 2 {
		t.Fatalf("expected id 2, got %d", next.ID)
	}
}

func TestStorePropagatesFailures(t *testing.T) {
	ctx := context.Background()
	store, conn, _ := openStub(t)
	conn.FailCommit = true
	if _, err := store.Create(ctx, catalog.Record{Title: "x"}); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	if _, err := store.Delete(ctx, 404); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	db, failing := testutil.NewStubDB()
	failing.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(ctx, ""); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestFailedCommitRestoresMemoryState(t *testing.T) {
	ctx := context.Background()
	store, conn, _ := openStub(t)
	rec, err := store.Create(ctx, catalog.Record{Title: "people"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn.FailCommit = true
	if _, err := store.Update(ctx, rec.ID, func(r *catalog.Record) error {
		r.Title = "renamed"
		return nil
	}); err == nil {
		t.Fatalf("expected commit failure")
	}
	if _, err := store.Create(ctx, catalog.Record{Title: "lost"}); err == nil {
		t.Fatalf("expected commit failure on create")
	}
	if _, err := store.Delete(ctx, rec.ID); err == nil {
		t.Fatalf("expected commit failure on delete")
	}
	conn.FailCommit = false

	got, err := store.Get(ctx, rec.ID)
	if err != nil || got.Title != "people" {
		t.Fatalf("record changed after failed commit: %+v %v", got, err)
	}
	next, err := store.Create(ctx, catalog.Record{Title: "next"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if next.ID != 2 {
		t.Fatalf("failed create consumed an id: got %d", next.ID)
	}
}
