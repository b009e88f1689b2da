// Package config reads the FRAMEGRID_* environment into one struct shared by
// the server and the terminal client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"framegrid/internal/blob"
	"framegrid/internal/frames"
	"framegrid/internal/observability"
)

const (
	DefaultAPIBase  = "http://localhost:8000/api/"
	DefaultHTTPAddr = ":8000"
	DefaultPageSize = 10
)

// Config holds every setting the commands consume.
type Config struct {
	APIBase        string
	PageSize       int
	HTTPAddr       string
	Storage        frames.StorageConfig
	Blob           blob.Config
	LogLevel       string
	LogFormat      string
	MaxUploadBytes int64
}

// Load reads configuration through getenv (typically os.Getenv). Every
// invalid value is reported in one joined error.
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	cfg := Config{
		APIBase:   get("FRAMEGRID_API_BASE", DefaultAPIBase),
		HTTPAddr:  get("FRAMEGRID_HTTP_ADDR", DefaultHTTPAddr),
		LogLevel:  get("FRAMEGRID_LOG_LEVEL", "info"),
		LogFormat: get("FRAMEGRID_LOG_FORMAT", "text"),
		Storage: frames.StorageConfig{
			Driver:      frames.StorageDriver(get("FRAMEGRID_STORE", string(frames.StorageMemory))),
			SQLitePath:  get("FRAMEGRID_SQLITE_PATH", ""),
			PostgresDSN: get("FRAMEGRID_POSTGRES_DSN", ""),
		},
		Blob: blob.Config{
			Driver: blob.Driver(get("FRAMEGRID_BLOB_DRIVER", string(blob.DriverFilesystem))),
			FSRoot: get("FRAMEGRID_BLOB_FS_ROOT", blob.DefaultFSRoot),
			S3: blob.S3Config{
				Region:          get("FRAMEGRID_BLOB_S3_REGION", ""),
				Bucket:          get("FRAMEGRID_BLOB_S3_BUCKET", ""),
				Prefix:          get("FRAMEGRID_BLOB_S3_PREFIX", ""),
				Endpoint:        get("FRAMEGRID_BLOB_S3_ENDPOINT", ""),
				AccessKeyID:     get("FRAMEGRID_BLOB_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: get("FRAMEGRID_BLOB_S3_SECRET_ACCESS_KEY", ""),
				SessionToken:    get("FRAMEGRID_BLOB_S3_SESSION_TOKEN", ""),
			},
		},
	}

	var errs []error
	var err error
	if cfg.PageSize, err = positiveInt(get("FRAMEGRID_PAGE_SIZE", ""), DefaultPageSize); err != nil {
		errs = append(errs, fmt.Errorf("FRAMEGRID_PAGE_SIZE: %w", err))
	}
	size, err := positiveInt(get("FRAMEGRID_MAX_UPLOAD_BYTES", ""), int(frames.DefaultMaxUploadBytes))
	if err != nil {
		errs = append(errs, fmt.Errorf("FRAMEGRID_MAX_UPLOAD_BYTES: %w", err))
	}
	cfg.MaxUploadBytes = int64(size)
	if raw := get("FRAMEGRID_BLOB_S3_PATH_STYLE", ""); raw != "" {
		if cfg.Blob.S3.PathStyle, err = strconv.ParseBool(raw); err != nil {
			errs = append(errs, fmt.Errorf("FRAMEGRID_BLOB_S3_PATH_STYLE: %q is not a boolean", raw))
		}
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

// Validate checks enumerations and the cross-field requirements. Flags that
// override loaded values should be followed by another Validate.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.APIBase); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api base %q must be an absolute http(s) URL", c.APIBase))
	}
	switch c.Storage.Driver {
	case frames.StorageMemory, frames.StorageSQLite:
	case frames.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("FRAMEGRID_POSTGRES_DSN is required when FRAMEGRID_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (memory|sqlite|postgres)", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("FRAMEGRID_BLOB_S3_BUCKET is required when FRAMEGRID_BLOB_DRIVER=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q (fs|s3|memory)", c.Blob.Driver))
	}
	if _, err := observability.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (text|json)", c.LogFormat))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	return errors.Join(errs...)
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def, fmt.Errorf("%q is not a positive integer", raw)
	}
	return n, nil
}
