// Package frames is the dataset service: it ingests spreadsheets, serves
// typed pages and applies the versioned mutations (dtype coercion,
// find/replace, undo) that the grid client drives.
package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"framegrid/internal/blob"
	"framegrid/internal/catalog"
	"framegrid/internal/dtype"
	"framegrid/internal/observability"
)

const (
	// DefaultPageSize applies when a page request names no size.
	DefaultPageSize = 10
	// MaxPageSize bounds a single page.
	MaxPageSize = 1000
	// DefaultMaxUploadBytes bounds an uploaded file.
	DefaultMaxUploadBytes int64 = 10 << 20

	tableCacheSize = 8
)

// Logger is the structured logger the service writes to. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service implements the dataset operations over a catalog and a blob store.
type Service struct {
	store     catalog.Store
	blobs     blob.Store
	metrics   observability.MetricsRecorder
	tracer    observability.Tracer
	logger    Logger
	now       func() time.Time
	maxUpload int64

	// mu serializes mutations so each one sees the version the previous produced.
	mu sync.Mutex

	cacheMu sync.Mutex
	cache   map[string]Table
	order   []string
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records one observation per operation.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer opens one span per operation.
func WithTracer(t observability.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for history entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxUploadBytes bounds uploads; non-positive values keep the default.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewService constructs a service backed by the supplied stores.
func NewService(store catalog.Store, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		blobs:     blobs,
		metrics:   observability.NoopRecorder(),
		tracer:    observability.NoopTracer(),
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
		maxUpload: DefaultMaxUploadBytes,
		cache:     make(map[string]Table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Page is one window of a dataset, converted under its dtypes.
type Page struct {
	Record      catalog.Record
	Rows        []map[string]any
	CurrentPage int
	TotalPages  int
	TotalItems  int
	PageSize    int
	// Message is set when some cells could not be converted and were served raw.
	Message string
}

// Upload stores a spreadsheet, infers its dtypes and creates a record.
func (s *Service) Upload(ctx context.Context, title, fileName string, r io.Reader) (rec catalog.Record, err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.upload")
	defer func() { done(err) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return catalog.Record{}, fieldError("title", "This field is required.", nil)
	}
	if fileName == "" || r == nil {
		return catalog.Record{}, fieldError("file", "No file was submitted.", nil)
	}
	if _, err := DetectFormat(fileName); err != nil {
		return catalog.Record{}, fieldError("file", "Unsupported file type; upload a .csv, .xls or .xlsx file.", err)
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return catalog.Record{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return catalog.Record{}, fieldError("file", fmt.Sprintf("File exceeds %d bytes.", s.maxUpload), nil)
	}
	table, err := ParseSpreadsheet(fileName, bytes.NewReader(data))
	if err != nil {
		return catalog.Record{}, fieldError("file", "The submitted file could not be read: "+err.Error(), err)
	}
	types := make(map[string]dtype.Tag, len(table.Columns))
	for i, col := range table.Columns {
		types[col] = dtype.Infer(table.Column(i))
	}
	rec, err = s.store.Create(ctx, catalog.Record{
		Title:    title,
		FileName: path.Base(fileName),
		Columns:  table.Columns,
		DTypes:   types,
	})
	if err != nil {
		return catalog.Record{}, err
	}
	key := versionKey(rec.ID, 0, strings.ToLower(path.Ext(fileName)))
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType(fileName),
		Metadata:    map[string]string{"title": title, "file_name": rec.FileName},
	}); err != nil {
		if _, derr := s.store.Delete(ctx, rec.ID); derr != nil {
			s.logger.Warn("rollback record after failed upload", "id", rec.ID, "error", derr)
		}
		return catalog.Record{}, fmt.Errorf("store upload: %w", err)
	}
	s.remember(key, table)
	rec, err = s.store.Update(ctx, rec.ID, func(r *catalog.Record) error {
		r.FileKey = key
		return nil
	})
	if err != nil {
		return catalog.Record{}, err
	}
	s.logger.Info("dataset uploaded", "id", rec.ID, "title", title, "rows", len(table.Rows), "columns", len(table.Columns))
	return rec, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id int64) (catalog.Record, error) {
	return s.store.Get(ctx, id)
}

// List returns every record ordered by ID.
func (s *Service) List(ctx context.Context) ([]catalog.Record, error) {
	return s.store.List(ctx)
}

// Page returns rows [(page-1)*size, page*size) converted under the record's
// dtypes. Pages past the end are empty; current_page echoes the request.
func (s *Service) Page(ctx context.Context, id int64, page, size int) (out Page, err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.page")
	defer func() { done(err) }()

	if page < 1 {
		return Page{}, fieldError("page", "Page must be a positive integer.", nil)
	}
	if size < 1 || size > MaxPageSize {
		return Page{}, fieldError("page_size", fmt.Sprintf("Page size must be between 1 and %d.", MaxPageSize), nil)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Page{}, err
	}
	table, err := s.table(ctx, rec.FileKey)
	if err != nil {
		return Page{}, err
	}
	total := len(table.Rows)
	out = Page{
		Record:      rec,
		CurrentPage: page,
		PageSize:    size,
		TotalItems:  total,
		TotalPages:  (total + size - 1) / size,
		Rows:        []map[string]any{},
	}
	start := (page - 1) * size
	if start >= total {
		return out, nil
	}
	end := min(start+size, total)
	var failed []string
	for _, raw := range table.Rows[start:end] {
		row := make(map[string]any, len(table.Columns))
		for j, col := range table.Columns {
			v, cerr := dtype.Convert(raw[j], rec.DTypes[col])
			if cerr != nil {
				v = raw[j]
				failed = append(failed, col)
			}
			row[col] = wireValue(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if len(failed) > 0 {
		out.Message = "Some cells could not be converted: " + strings.Join(uniq(failed), ", ")
		s.logger.Warn("served unconverted cells", "id", id, "columns", uniq(failed))
	}
	return out, nil
}

// Coerce changes the declared type of the named columns. Every cell of each
// named column must convert; failures are reported per column.
func (s *Service) Coerce(ctx context.Context, id int64, types map[string]dtype.Tag) (rec catalog.Record, err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.coerce")
	defer func() { done(err) }()

	if len(types) == 0 {
		return catalog.Record{}, fieldError("dtypes", "This field is required.", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return catalog.Record{}, err
	}
	table, err := s.table(ctx, current.FileKey)
	if err != nil {
		return catalog.Record{}, err
	}
	verr := &ValidationError{Field: "dtypes"}
	changed := false
	for _, col := range sortedKeys(types) {
		tag := types[col]
		idx := table.Index(col)
		switch {
		case idx < 0:
			verr.Add(col, "Unknown column.")
			continue
		case !tag.Valid():
			verr.Add(col, fmt.Sprintf("%q is not a valid dtype.", string(tag)))
			continue
		}
		if reason := checkColumn(table, idx, tag); reason != "" {
			verr.Add(col, reason)
			continue
		}
		if current.DTypes[col] != tag {
			changed = true
		}
	}
	if !verr.empty() {
		return catalog.Record{}, verr
	}
	if !changed {
		return current, nil
	}
	rec, err = s.store.Update(ctx, id, func(r *catalog.Record) error {
		r.Push(catalog.KindCoerce, s.now())
		if r.DTypes == nil {
			r.DTypes = make(map[string]dtype.Tag, len(types))
		}
		for col, tag := range types {
			r.DTypes[col] = tag
		}
		return nil
	})
	if err != nil {
		return catalog.Record{}, err
	}
	s.logger.Info("dtypes changed", "id", id, "dtypes", types)
	return rec, nil
}

// ParseFindReplace splits the service's "find:replace" encoding on the first
// colon. Input without a colon deletes occurrences of the whole string.
func ParseFindReplace(input string) (find, replace string, err error) {
	find, replace, _ = strings.Cut(input, ":")
	if find == "" {
		return "", "", ErrEmptyFind
	}
	return find, replace, nil
}

// FindReplace substitutes text in every cell and stores the result as a new
// version. A replacement that breaks a column's declared type is rejected.
func (s *Service) FindReplace(ctx context.Context, id int64, input string) (rec catalog.Record, err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.find_replace")
	defer func() { done(err) }()

	find, replace, err := ParseFindReplace(input)
	if err != nil {
		return catalog.Record{}, fieldError("input_string", "Find text may not be blank; use find:replace.", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return catalog.Record{}, err
	}
	table, err := s.table(ctx, current.FileKey)
	if err != nil {
		return catalog.Record{}, err
	}
	next, changed := table.Replace(find, replace)
	if changed == 0 {
		return current, nil
	}
	for i, col := range next.Columns {
		if reason := checkColumn(next, i, current.DTypes[col]); reason != "" {
			return catalog.Record{}, fieldError("input_string",
				fmt.Sprintf("Replacement leaves column %s incompatible with %s: %s", col, current.DTypes[col], reason), nil)
		}
	}
	body, err := next.EncodeCSV()
	if err != nil {
		return catalog.Record{}, fmt.Errorf("encode version: %w", err)
	}
	n, err := s.nextVersion(ctx, id)
	if err != nil {
		return catalog.Record{}, err
	}
	key := versionKey(id, n, ".csv")
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"kind": string(catalog.KindFindReplace)},
	}); err != nil {
		return catalog.Record{}, fmt.Errorf("store version: %w", err)
	}
	s.remember(key, next)
	rec, err = s.store.Update(ctx, id, func(r *catalog.Record) error {
		r.Push(catalog.KindFindReplace, s.now())
		r.FileKey = key
		return nil
	})
	if err != nil {
		return catalog.Record{}, err
	}
	s.logger.Info("find/replace applied", "id", id, "cells", changed, "version", key)
	return rec, nil
}

// Undo restores the state before the most recent mutation.
func (s *Service) Undo(ctx context.Context, id int64) (rec catalog.Record, err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.undo")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	var abandoned string
	rec, err = s.store.Update(ctx, id, func(r *catalog.Record) error {
		prev := r.FileKey
		if _, ok := r.Pop(); !ok {
			return ErrNoHistory
		}
		if prev != r.FileKey && !referenced(*r, prev) {
			abandoned = prev
		}
		return nil
	})
	if err != nil {
		return catalog.Record{}, err
	}
	if abandoned != "" {
		if _, derr := s.blobs.Delete(ctx, abandoned); derr != nil {
			s.logger.Warn("delete abandoned version", "key", abandoned, "error", derr)
		}
		s.forget(abandoned)
	}
	s.logger.Info("undo applied", "id", id, "version", rec.FileKey)
	return rec, nil
}

// Delete removes a record and every stored version.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := observability.Track(ctx, s.metrics, s.tracer, "frames.delete")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	infos, err := s.blobs.List(ctx, versionPrefix(id))
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete version %s: %w", info.Key, err)
		}
		s.forget(info.Key)
	}
	return nil
}

// OrderedDTypes encodes a record's dtypes as a JSON object in column order.
func OrderedDTypes(rec catalog.Record) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range rec.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(col)
		v, _ := json.Marshal(string(rec.DTypes[col]))
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func (s *Service) table(ctx context.Context, key string) (Table, error) {
	s.cacheMu.Lock()
	t, ok := s.cache[key]
	s.cacheMu.Unlock()
	if ok {
		return t, nil
	}
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return Table{}, fmt.Errorf("open version %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	t, err = ParseSpreadsheet(key, rc)
	if err != nil {
		return Table{}, err
	}
	s.remember(key, t)
	return t, nil
}

// remember caches a parsed version. Version keys are write-once, so entries
// never go stale.
func (s *Service) remember(key string, t Table) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if _, ok := s.cache[key]; ok {
		return
	}
	if len(s.order) >= tableCacheSize {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
	s.cache[key] = t
	s.order = append(s.order, key)
}

func (s *Service) forget(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.cache, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Service) nextVersion(ctx context.Context, id int64) (int, error) {
	infos, err := s.blobs.List(ctx, versionPrefix(id))
	if err != nil {
		return 0, fmt.Errorf("list versions: %w", err)
	}
	next := 1
	for _, info := range infos {
		name := strings.TrimPrefix(path.Base(info.Key), "v")
		name = strings.TrimSuffix(name, path.Ext(name))
		if n, err := strconv.Atoi(name); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

func versionPrefix(id int64) string { return fmt.Sprintf("content/%d/", id) }

func versionKey(id int64, n int, ext string) string {
	return fmt.Sprintf("content/%d/v%d%s", id, n, ext)
}

func referenced(r catalog.Record, key string) bool {
	for _, v := range r.History {
		if v.FileKey == key {
			return true
		}
	}
	return false
}

// checkColumn returns the first conversion failure of column idx under tag.
func checkColumn(t Table, idx int, tag dtype.Tag) string {
	for r, row := range t.Rows {
		if _, err := dtype.Convert(row[idx], tag); err != nil {
			var ce *dtype.ConversionError
			if errors.As(err, &ce) {
				return fmt.Sprintf("row %d: %q is %s", r+1, ce.Value, ce.Reason)
			}
			return fmt.Sprintf("row %d: %v", r+1, err)
		}
	}
	return ""
}

func wireValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return v
	}
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return "text/csv"
	case ".xls":
		return "application/vnd.ms-excel"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

func sortedKeys(m map[string]dtype.Tag) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
