package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"framegrid/internal/dtype"
)

// Dataset is a catalog entry as reported by the service.
type Dataset struct {
	ID        int64                `json:"id"`
	Title     string               `json:"title"`
	File      string               `json:"file"`
	Columns   []string             `json:"columns,omitempty"`
	DTypes    map[string]dtype.Tag `json:"dtypes,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Ref returns the dataset reference used by the page and mutation endpoints.
func (d Dataset) Ref() string { return strconv.FormatInt(d.ID, 10) }

// List returns every dataset the service knows about.
func (c *Client) List(ctx context.Context) ([]Dataset, error) {
	var out []Dataset
	if err := c.do(ctx, "list", http.MethodGet, c.endpoint("dataframe/", nil), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload creates a dataset from a spreadsheet. name is the original file name;
// its extension selects the parser on the service side.
func (c *Client) Upload(ctx context.Context, title, name string, r io.Reader) (Dataset, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", title); err != nil {
		return Dataset{}, fmt.Errorf("write title: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return Dataset{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Dataset{}, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Dataset{}, fmt.Errorf("close multipart: %w", err)
	}
	var out Dataset
	if err := c.do(ctx, "upload", http.MethodPost, c.endpoint("dataframe/", nil), &buf, mw.FormDataContentType(), &out); err != nil {
		return Dataset{}, err
	}
	if out.ID == 0 {
		return Dataset{}, ErrNoDataset
	}
	return out, nil
}
