package blob

import (
	"context"
	"fmt"

	fsstore "framegrid/internal/infra/blob/fs"
	memorystore "framegrid/internal/infra/blob/memory"
	infraS3 "framegrid/internal/infra/blob/s3"
)

// DefaultFSRoot is used when the filesystem driver has no root configured.
const DefaultFSRoot = "./blobdata"

// S3Config re-exports the S3 backend configuration.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the Store selected by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		root := cfg.FSRoot
		if root == "" {
			root = DefaultFSRoot
		}
		return NewFilesystem(root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a Store rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	s, err := fsstore.New(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
