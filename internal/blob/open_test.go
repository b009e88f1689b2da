package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{"memory", Config{Driver: DriverMemory}, DriverMemory},
		{"fs", Config{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if s.Driver() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, s.Driver())
			}
			if _, err := s.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := s.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestMockS3(t *testing.T) {
	s := NewMockS3ForTests()
	if _, err := s.Head(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
