// Package client talks to the remote dataset service over HTTP and
// implements grid.Remote.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"framegrid/internal/dtype"
	"framegrid/internal/grid"
	"framegrid/internal/observability"
)

// DefaultBaseURL is the service root used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api/"

const maxResponseBytes = 64 << 20

// Client is an HTTP grid.Remote.
type Client struct {
	base    *url.URL
	http    *http.Client
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
	logger  grid.Logger
}

var _ grid.Remote = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMetrics records each request outcome.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer traces each request.
func WithTracer(t observability.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l grid.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client rooted at baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		metrics: observability.NoopRecorder(),
		tracer:  observability.NoopTracer(),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func framePath(ref string, suffix string) string {
	return "dataframe/" + url.PathEscape(ref) + suffix
}

// FetchPage implements grid.Remote.
func (c *Client) FetchPage(ctx context.Context, ref string, page, pageSize int) (grid.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	var body pageBody
	if err := c.do(ctx, "fetch_page", http.MethodGet, c.endpoint(framePath(ref, ""), q), nil, "", &body); err != nil {
		return grid.Page{}, err
	}
	out, err := body.page()
	if err != nil {
		return grid.Page{}, &grid.RemoteError{Kind: grid.KindDecode, Op: "fetch_page", Status: http.StatusOK, Err: err}
	}
	if out.CurrentPage == 0 {
		out.CurrentPage = page
	}
	return out, nil
}

// CoerceColumns implements grid.Remote.
func (c *Client) CoerceColumns(ctx context.Context, ref string, dtypes map[string]dtype.Tag) error {
	payload, err := json.Marshal(map[string]any{"dtypes": dtypes})
	if err != nil {
		return &grid.RemoteError{Kind: grid.KindTransport, Op: "coerce_columns", Err: err}
	}
	return c.do(ctx, "coerce_columns", http.MethodPatch, c.endpoint(framePath(ref, "/"), nil), bytes.NewReader(payload), "application/json", nil)
}

// FindReplace implements grid.Remote. input is sent verbatim.
func (c *Client) FindReplace(ctx context.Context, ref string, input string) error {
	payload, err := json.Marshal(map[string]string{"input_string": input})
	if err != nil {
		return &grid.RemoteError{Kind: grid.KindTransport, Op: "find_replace", Err: err}
	}
	return c.do(ctx, "find_replace", http.MethodPost, c.endpoint(framePath(ref, "/find/"), nil), bytes.NewReader(payload), "application/json", nil)
}

// Undo implements grid.Remote. A 400 reply means the history is empty.
func (c *Client) Undo(ctx context.Context, ref string) error {
	err := c.do(ctx, "undo", http.MethodPost, c.endpoint(framePath(ref, "/undo/"), nil), nil, "", nil)
	var re *grid.RemoteError
	if errors.As(err, &re) && re.Status == http.StatusBadRequest {
		re.Kind = grid.KindEmptyHistory
	}
	return err
}

// Delete removes a dataset.
func (c *Client) Delete(ctx context.Context, ref string) error {
	return c.do(ctx, "delete", http.MethodDelete, c.endpoint(framePath(ref, "/"), nil), nil, "", nil)
}

func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string, out any) (err error) {
	ctx, done := observability.Track(ctx, c.metrics, c.tracer, op)
	defer func() { done(err) }()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &grid.RemoteError{Kind: grid.KindTransport, Op: op, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.logger.Debug("dataset request", "op", op, "method", method, "url", target, "request_id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &grid.RemoteError{Kind: grid.KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &grid.RemoteError{Kind: grid.KindTransport, Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("dataset request rejected", "op", op, "status", resp.StatusCode, "request_id", requestID)
		return statusError(op, resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &grid.RemoteError{Kind: grid.KindDecode, Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
