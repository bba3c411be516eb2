package tabular

import (
	"strings"
	"testing"
)

func TestDetectKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		file string
		kind Kind
		ok   bool
	}{
		{"data.csv", KindCSV, true},
		{"DATA.CSV", KindCSV, true},
		{"report.xlsx", KindXLSX, true},
		{"legacy.xls", KindXLSX, true},
		{"notes.txt", "", false},
		{"noext", "", false},
	}
	for _, tc := range cases {
		kind, ok := DetectKind(tc.file)
		if kind != tc.kind || ok != tc.ok {
			t.Fatalf("DetectKind(%q) = (%q, %v), want (%q, %v)", tc.file, kind, ok, tc.kind, tc.ok)
		}
	}
}

func TestReadCSV_Basic(t *testing.T) {
	t.Parallel()

	in := "name,age\nalice,30\nbob,25\n"
	tb, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tb.Columns) != 2 || tb.Columns[0] != "name" || tb.Columns[1] != "age" {
		t.Fatalf("columns = %v", tb.Columns)
	}
	if len(tb.Rows) != 2 || tb.Rows[0][0] != "alice" || tb.Rows[1][1] != "25" {
		t.Fatalf("rows = %v", tb.Rows)
	}
}

func TestReadCSV_StripsBOM(t *testing.T) {
	t.Parallel()

	in := "\uFEFFname,age\nalice,30\n"
	tb, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tb.Columns[0] != "name" {
		t.Fatalf("first header = %q, BOM not stripped", tb.Columns[0])
	}
}

func TestReadCSV_AlignsRaggedRows(t *testing.T) {
	t.Parallel()

	in := "a,b,c\n1,2\n1,2,3,4\n"
	tb, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	for i, row := range tb.Rows {
		if len(row) != 3 {
			t.Fatalf("row %d has %d cells, want 3", i, len(row))
		}
	}
	if tb.Rows[0][2] != "" {
		t.Fatalf("short row not padded: %v", tb.Rows[0])
	}
	if tb.Rows[1][2] != "3" {
		t.Fatalf("long row not truncated cleanly: %v", tb.Rows[1])
	}
}

func TestReadCSV_EmptyInput(t *testing.T) {
	t.Parallel()

	tb, err := ReadCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tb.Columns) != 0 || len(tb.Rows) != 0 {
		t.Fatalf("expected empty table, got %v / %v", tb.Columns, tb.Rows)
	}
}

func TestSelect_PreservesRequestedOrderAndDropsUnknown(t *testing.T) {
	t.Parallel()

	tb := &Table{
		Columns: []string{"a", "b", "c"},
		Rows:    [][]string{{"1", "2", "3"}},
	}
	got := tb.Select([]string{"c", "missing", "a"})
	if len(got.Columns) != 2 || got.Columns[0] != "c" || got.Columns[1] != "a" {
		t.Fatalf("columns = %v", got.Columns)
	}
	if got.Rows[0][0] != "3" || got.Rows[0][1] != "1" {
		t.Fatalf("rows = %v", got.Rows)
	}
}

func TestDropEmptyRows(t *testing.T) {
	t.Parallel()

	tb := &Table{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1", "2"},
			{"", ""},
			{"", "x"},
			{"", ""},
		},
	}
	tb.DropEmptyRows()
	if len(tb.Rows) != 2 {
		t.Fatalf("kept %d rows, want 2: %v", len(tb.Rows), tb.Rows)
	}
}

func TestColumnValues(t *testing.T) {
	t.Parallel()

	tb := &Table{
		Columns: []string{"a", "b"},
		Rows:    [][]string{{"1", "x"}, {"2", "y"}},
	}
	got := tb.ColumnValues("b")
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("ColumnValues(b) = %v", got)
	}
	if tb.ColumnValues("missing") != nil {
		t.Fatalf("expected nil for unknown column")
	}
}

func TestBuildPreview_CapsAtFiveRows(t *testing.T) {
	t.Parallel()

	tb := &Table{Columns: []string{"a"}}
	for i := 0; i < 10; i++ {
		tb.Rows = append(tb.Rows, []string{"v"})
	}
	p := BuildPreview(tb)
	if p.SampleRows != 5 || len(p.Rows) != 5 {
		t.Fatalf("preview rows = %d/%d, want 5", p.SampleRows, len(p.Rows))
	}
	if p.TotalColumns != 1 {
		t.Fatalf("total columns = %d", p.TotalColumns)
	}
	if p.Rows[0]["a"] != "v" {
		t.Fatalf("row content = %v", p.Rows[0])
	}
}

func TestValidateStructure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		table *Table
		want  []string
	}{
		{
			name:  "sound",
			table: &Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}},
			want:  nil,
		},
		{
			name:  "no_columns",
			table: &Table{},
			want:  []string{"file appears to be empty"},
		},
		{
			name:  "headers_but_no_rows",
			table: &Table{Columns: []string{"a", "b"}},
			want:  []string{"file appears to be empty"},
		},
		{
			name:  "unnamed_column",
			table: &Table{Columns: []string{"a", ""}, Rows: [][]string{{"1", "2"}}},
			want:  []string{"file contains unnamed columns: column 2"},
		},
		{
			name:  "empty_column",
			table: &Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", ""}, {"2", ""}}},
			want:  []string{"file contains completely empty columns: b"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ValidateStructure(tc.table)
			if len(got) != len(tc.want) {
				t.Fatalf("findings = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("finding %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
