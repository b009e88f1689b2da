package frames

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Table is a parsed spreadsheet: a header row and raw string cells. Short
// rows are padded to the header width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Format names a supported file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat picks the encoding from a file name, case-insensitively.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
}

// ParseSpreadsheet reads a CSV or Excel workbook, choosing by file name.
// Excel input uses the first sheet. A .xls file holding an OOXML workbook is
// read as one.
func ParseSpreadsheet(name string, r io.Reader) (Table, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return Table{}, err
	}
	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readExcel(r)
	case FormatXLS:
		rows, err = readXLS(r)
	default:
		rows, err = readCSV(r)
	}
	if err != nil {
		return Table{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return newTable(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("no sheets")
	}
	return f.GetRows(sheet)
}

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// readXLS reads a legacy BIFF workbook. Files saved as .xls that are really
// OOXML go through excelize instead.
func readXLS(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return readExcel(bytes.NewReader(data))
	case !bytes.HasPrefix(data, ole2Magic):
		return nil, errors.New("not an Excel workbook")
	}
	return readBIFF(bytes.NewReader(data))
}

func readBIFF(r io.ReadSeeker) (rows [][]string, err error) {
	// the BIFF decoder indexes record data without bounds checks
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("malformed legacy workbook: %v", p)
		}
	}()
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("legacy workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("no sheets")
	}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func newTable(rows [][]string) (Table, error) {
	if len(rows) == 0 {
		return Table{}, errors.New("empty file")
	}
	headers := make([]string, len(rows[0]))
	seen := make(map[string]int, len(headers))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		headers[i] = h
	}
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, len(headers))
		copy(cells, row)
		body = append(body, cells)
	}
	return Table{Columns: headers, Rows: body}, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Column returns the raw cells of column i.
func (t Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Index returns the position of a column or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Replace returns a copy with every occurrence of find replaced in every cell,
// plus the number of cells that changed.
func (t Table) Replace(find, replace string) (Table, int) {
	out := Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]string, len(t.Rows))}
	changed := 0
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = strings.ReplaceAll(c, find, replace)
			if cells[j] != c {
				changed++
			}
		}
		out.Rows[i] = cells
	}
	return out, changed
}

// EncodeCSV writes the table as CSV with a header row.
func (t Table) EncodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
