// Package frames exposes the dataset service over HTTP using the dataframe
// wire contract: paged reads, dtype PATCH, find/replace, undo and multipart
// upload. Error bodies follow the field-keyed shape the grid client decodes.
package frames

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"framegrid/internal/catalog"
	"framegrid/internal/dtype"
	"framegrid/internal/frames"
)

// DefaultPrefix is the path the handler is mounted under.
const DefaultPrefix = "/api/"

// Service is the subset of frames.Service the handler drives.
type Service interface {
	Upload(ctx context.Context, title, fileName string, r io.Reader) (catalog.Record, error)
	List(ctx context.Context) ([]catalog.Record, error)
	Page(ctx context.Context, id int64, page, size int) (frames.Page, error)
	Coerce(ctx context.Context, id int64, types map[string]dtype.Tag) (catalog.Record, error)
	FindReplace(ctx context.Context, id int64, input string) (catalog.Record, error)
	Undo(ctx context.Context, id int64) (catalog.Record, error)
	Delete(ctx context.Context, id int64) error
}

// Logger receives unexpected service failures. *slog.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
}

// Handler provides HTTP access to datasets.
type Handler struct {
	Service        Service
	Prefix         string
	MaxUploadBytes int64
	Logger         Logger
}

// NewHandler constructs a handler mounted at DefaultPrefix.
func NewHandler(svc Service) *Handler {
	return &Handler{Service: svc, Prefix: DefaultPrefix, MaxUploadBytes: frames.DefaultMaxUploadBytes}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeDetail(w, http.StatusInternalServerError, "dataset service not configured")
		return
	}
	prefix := h.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	rest, ok := strings.CutPrefix(r.URL.Path, strings.TrimSuffix(prefix, "/")+"/dataframe")
	if !ok {
		http.NotFound(w, r)
		return
	}
	segments := splitPath(rest)
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleUpload(w, r)
		default:
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	id, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil || id < 1 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleRetrieve(w, r, id)
		case http.MethodPatch:
			h.handlePatch(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if len(segments) != 2 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch segments[1] {
	case "find":
		h.handleFind(w, r, id)
	case "undo":
		h.handleUndo(w, r, id)
	default:
		writeDetail(w, http.StatusNotFound, "Not found.")
	}
}

type recordResponse struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	File      string          `json:"file"`
	Columns   []string        `json:"columns,omitempty"`
	DTypes    json.RawMessage `json:"dtypes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type pageResponse struct {
	recordResponse
	Data        string `json:"data"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
	TotalItems  int    `json:"total_items"`
	PageSize    int    `json:"page_size"`
	Message     string `json:"message"`
}

func toResponse(rec catalog.Record, detailed bool) recordResponse {
	out := recordResponse{ID: rec.ID, Title: rec.Title, File: rec.FileKey, CreatedAt: rec.CreatedAt}
	if detailed {
		out.Columns = rec.Columns
		out.DTypes = frames.OrderedDTypes(rec)
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = frames.DefaultMaxUploadBytes
	}
	// multipart overhead on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"The submitted data was not a valid multipart form."}})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}})
		return
	}
	defer func() { _ = file.Close() }()
	rec, err := h.Service.Upload(r.Context(), r.FormValue("title"), header.Filename, file)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(rec, true))
}

func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request, id int64) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"page": {"A valid integer is required."}})
		return
	}
	size, err := queryInt(r, "page_size", frames.DefaultPageSize)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"page_size": {"A valid integer is required."}})
		return
	}
	p, err := h.Service.Page(r.Context(), id, page, size)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	data, err := json.Marshal(p.Rows)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		recordResponse: toResponse(p.Record, true),
		Data:           string(data),
		CurrentPage:    p.CurrentPage,
		TotalPages:     p.TotalPages,
		TotalItems:     p.TotalItems,
		PageSize:       p.PageSize,
		Message:        p.Message,
	})
}

type patchRequest struct {
	DTypes map[string]dtype.Tag `json:"dtypes"`
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request, id int64) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return
	}
	rec, err := h.Service.Coerce(r.Context(), id, req.DTypes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec, true))
}

type findRequest struct {
	InputString *string `json:"input_string"`
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request, id int64) {
	var req findRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return
	}
	if req.InputString == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"input_string": {"This field is required."}})
		return
	}
	rec, err := h.Service.FindReplace(r.Context(), id, *req.InputString)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec, true))
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request, id int64) {
	rec, err := h.Service.Undo(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec, true))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *frames.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationBody(verr))
	case errors.Is(err, frames.ErrNoHistory):
		writeDetail(w, http.StatusBadRequest, "No previous versions to undo.")
	case errors.Is(err, catalog.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found.")
	default:
		if h.Logger != nil {
			h.Logger.Error("dataset request failed", "error", err)
		}
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

// validationBody renders {"field": ["reason"]} or, for per-column reasons,
// {"field": {"column": ["reason"]}}.
func validationBody(verr *frames.ValidationError) map[string]any {
	if own, ok := verr.Reasons[""]; ok && len(verr.Reasons) == 1 {
		return map[string]any{verr.Field: own}
	}
	return map[string]any{verr.Field: verr.Reasons}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"detail": message})
}
