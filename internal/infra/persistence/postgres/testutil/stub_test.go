package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubUpsertAndSelect(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{"one", "two"} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "records"}, {Value: []byte(payload)}}); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	if got := len(conn.Tables["state"]); got != 1 {
		t.Fatalf("expected upsert to replace row, got %d rows", got)
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dest[0] != "records" || string(dest[1].([]byte)) != "two" {
		t.Fatalf("unexpected row %v", dest)
	}
}

func TestStubFailures(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	if _, err := conn.QueryContext(ctx, "UPDATE state", nil); err == nil {
		t.Fatalf("expected parse failure")
	}
}
