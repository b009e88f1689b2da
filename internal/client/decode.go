package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"framegrid/internal/dtype"
	"framegrid/internal/grid"
)

type pageBody struct {
	Data        json.RawMessage `json:"data"`
	DTypes      json.RawMessage `json:"dtypes"`
	Columns     []string        `json:"columns"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
}

func (b pageBody) page() (grid.Page, error) {
	rows, err := decodeRows(b.Data)
	if err != nil {
		return grid.Page{}, err
	}
	typed, err := decodeDTypes(b.DTypes)
	if err != nil {
		return grid.Page{}, err
	}
	var cols grid.ColumnSource
	switch {
	case typed != nil:
		cols = orderTyped(typed, b.Columns)
	case b.Columns != nil:
		cols = grid.NamedColumns(b.Columns)
	default:
		cols = grid.NamedColumns(firstRowKeys(b.Data))
	}
	return grid.Page{Rows: rows, Columns: cols, CurrentPage: b.CurrentPage, TotalPages: b.TotalPages}, nil
}

// unwrapData returns the row list bytes. The service may embed the list as a
// JSON-encoded string, which takes one extra decode step.
func unwrapData(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("decode embedded data: %w", err)
	}
	return []byte(inner), nil
}

func decodeRows(raw json.RawMessage) ([]grid.Row, error) {
	data, err := unwrapData(raw)
	if err != nil || data == nil {
		return []grid.Row{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	out := make([]grid.Row, len(rows))
	for i, r := range rows {
		out[i] = grid.Row(r)
	}
	return out, nil
}

// decodeDTypes reads the dtype object keeping its key order. It returns nil
// when the field is absent or null.
func decodeDTypes(raw json.RawMessage) (grid.TypedColumns, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode embedded dtypes: %w", err)
		}
		raw = []byte(inner)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("decode dtypes: %w", err)
	}
	out := grid.TypedColumns{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode dtypes: %w", err)
		}
		key, _ := keyTok.(string)
		var tag string
		if err := dec.Decode(&tag); err != nil {
			return nil, fmt.Errorf("decode dtype for %q: %w", key, err)
		}
		out = append(out, grid.TypedColumn{Key: key, Type: dtype.Tag(tag)})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("decode dtypes: %w", err)
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// orderTyped applies the explicit column order when the service sent one;
// dtype keys missing from it keep their wire order at the end.
func orderTyped(typed grid.TypedColumns, order []string) grid.TypedColumns {
	if len(order) == 0 {
		return typed
	}
	byKey := make(map[string]grid.TypedColumn, len(typed))
	for _, c := range typed {
		byKey[c.Key] = c
	}
	out := make(grid.TypedColumns, 0, len(typed))
	seen := make(map[string]bool, len(typed))
	for _, key := range order {
		if c, ok := byKey[key]; ok && !seen[key] {
			out = append(out, c)
			seen[key] = true
		}
	}
	for _, c := range typed {
		if !seen[c.Key] {
			out = append(out, c)
		}
	}
	return out
}

// firstRowKeys recovers column order from the first row object when the
// response carries no schema at all.
func firstRowKeys(raw json.RawMessage) []string {
	data, err := unwrapData(raw)
	if err != nil || data == nil {
		return []string{}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if expectDelim(dec, '[') != nil || !dec.More() || expectDelim(dec, '{') != nil {
		return []string{}
	}
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, _ := tok.(string)
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

// statusError maps a non-2xx reply onto the grid error taxonomy. 5xx replies
// are transport failures; 4xx replies are validation failures whose body is
// flattened so nested {"dtypes": {"age": [...]}} reasons key by column.
func statusError(op string, status int, payload []byte) error {
	re := &grid.RemoteError{Kind: grid.KindValidation, Op: op, Status: status}
	if status >= http.StatusInternalServerError {
		re.Kind = grid.KindTransport
	}
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		if text := strings.TrimSpace(string(payload)); text != "" && len(text) < 512 {
			re.Detail = text
		} else {
			re.Detail = http.StatusText(status)
		}
		return re
	}
	if _, isMap := body.(map[string]any); !isMap {
		re.Detail = joinMessages(body)
		if re.Detail == "" {
			re.Detail = http.StatusText(status)
		}
		return re
	}
	fields := map[string][]string{}
	flatten(body, "", fields, &re.Detail)
	if len(fields) > 0 {
		re.Fields = fields
	}
	if re.Detail == "" && len(fields) == 0 {
		re.Detail = http.StatusText(status)
	}
	return re
}

func flatten(v any, key string, fields map[string][]string, detail *string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "detail" || k == "non_field_errors" || k == "message" {
				if msg := joinMessages(t[k]); msg != "" && *detail == "" {
					*detail = msg
				}
				continue
			}
			flatten(t[k], k, fields, detail)
		}
	case []any:
		for _, item := range t {
			if _, nested := item.(map[string]any); nested {
				flatten(item, key, fields, detail)
				continue
			}
			fields[fieldKey(key)] = append(fields[fieldKey(key)], fmt.Sprint(item))
		}
	case string:
		fields[fieldKey(key)] = append(fields[fieldKey(key)], t)
	case nil:
	default:
		fields[fieldKey(key)] = append(fields[fieldKey(key)], fmt.Sprint(t))
	}
}

func fieldKey(key string) string {
	if key == "" {
		return "non_field_errors"
	}
	return key
}

func joinMessages(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// ErrNoDataset is returned by Upload when the service reply names no id.
var ErrNoDataset = errors.New("client: service returned no dataset id")
