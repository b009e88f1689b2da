package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"framegrid/internal/blob/core"
)

func TestMockStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if s.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "content/1/v0.csv", strings.NewReader("a,b\n1,2\n"), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "content/1/v0.csv" || info.Size != 8 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "content/1/v0.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, "content/1/v0.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "a,b\n1,2\n" {
		t.Fatalf("unexpected body %q", body)
	}
	_, _ = s.Put(ctx, "content/2/v0.csv", strings.NewReader("y"), core.PutOptions{})
	list, err := s.List(ctx, "content/1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "content/1/v0.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, err := s.Delete(ctx, "content/1/v0.csv"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "content/1/v0.csv"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, err := s.Head(ctx, "content/1/v0.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPrefixedKeys(t *testing.T) {
	s := NewMockForTests()
	s.prefix = "tenant"
	ctx := context.Background()
	if _, err := s.Put(ctx, "content/1/v0.csv", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "content/1/v0.csv" {
		t.Fatalf("prefix leaked into keys: %+v", list)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	got, ok := decodeChunked([]byte("3;chunk-signature=abc\r\nabc\r\n2\r\nde\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	if !ok || string(got) != "abcde" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	if _, ok := decodeChunked([]byte("zz\r\n")); ok {
		t.Fatalf("expected failure on bad size")
	}
}
