// Package tabular loads CSV and XLSX files into an in-memory table of raw
// string cells, and provides the preview and structural checks the staging
// workflow runs before a file may be confirmed.
//
// Cells are kept as raw strings on purpose: type inference needs the
// untouched text, and typed conversion happens later against the inferred
// column plan.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Kind identifies a supported source file format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
)

// DetectKind maps a filename to its format. The second return is false for
// unsupported extensions.
func DetectKind(filename string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return KindCSV, true
	case ".xlsx", ".xls":
		return KindXLSX, true
	default:
		return "", false
	}
}

// Table is a fully loaded source file: a header row plus data rows aligned
// to it. Rows shorter than the header are padded with empty cells; rows
// longer are truncated.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Load reads a file of the given kind from disk.
func Load(path string, kind Kind) (*Table, error) {
	switch kind {
	case KindCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	case KindXLSX:
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file kind %q", kind)
	}
}

// ReadCSV parses CSV bytes into a Table.
//
// Reading is tolerant: quoting is lazy, field counts are not enforced by
// the reader, and a UTF-8 byte order mark is stripped so Excel-exported
// files do not grow a mangled first header.
func ReadCSV(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip unparseable records; probing and ingestion are both
			// best-effort over the rows that do parse.
			continue
		}
		t.Rows = append(t.Rows, alignRow(rec, len(header)))
	}
	return t, nil
}

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Columns: header}
	for _, rec := range rows[1:] {
		t.Rows = append(t.Rows, alignRow(rec, len(header)))
	}
	return t, nil
}

func alignRow(rec []string, width int) []string {
	row := make([]string, width)
	for i := 0; i < width && i < len(rec); i++ {
		row[i] = strings.TrimSpace(rec[i])
	}
	return row
}

// ColumnIndex returns the position of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColumnValues returns all raw values for a named column, in row order.
func (t *Table) ColumnValues(name string) []string {
	ix := t.ColumnIndex(name)
	if ix < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[ix]
	}
	return out
}

// Select returns a new table restricted to the requested columns that are
// actually present, preserving the requested order. Unknown names are
// silently dropped so a stale column selection cannot fail an import.
func (t *Table) Select(columns []string) *Table {
	keep := make([]int, 0, len(columns))
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		if ix := t.ColumnIndex(c); ix >= 0 {
			keep = append(keep, ix)
			names = append(names, c)
		}
	}

	out := &Table{Columns: names, Rows: make([][]string, len(t.Rows))}
	for i, r := range t.Rows {
		row := make([]string, len(keep))
		for j, ix := range keep {
			row[j] = r[ix]
		}
		out.Rows[i] = row
	}
	return out
}

// DropEmptyRows removes rows whose every cell is empty.
func (t *Table) DropEmptyRows() {
	out := t.Rows[:0]
	for _, r := range t.Rows {
		empty := true
		for _, v := range r {
			if v != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, r)
		}
	}
	t.Rows = out
}

// Row materializes one data row as a map keyed by original column name.
func (t *Table) Row(i int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for j, c := range t.Columns {
		out[c] = t.Rows[i][j]
	}
	return out
}
