package tabular

import (
	"fmt"
	"strings"
)

// previewRows is how many rows the staged-upload preview carries.
const previewRows = 5

// Preview is the sample shown to the user before they confirm an upload.
type Preview struct {
	Columns      []string            `json:"columns"`
	Rows         []map[string]string `json:"rows"`
	SampleRows   int                 `json:"total_rows_sample"`
	TotalColumns int                 `json:"total_columns"`
}

// BuildPreview returns the first few rows of the table keyed by column name.
func BuildPreview(t *Table) Preview {
	n := previewRows
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	rows := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		rows[i] = t.Row(i)
	}
	return Preview{
		Columns:      append([]string(nil), t.Columns...),
		Rows:         rows,
		SampleRows:   n,
		TotalColumns: len(t.Columns),
	}
}

// ValidateStructure runs the structural checks a file must pass before it
// can be confirmed. Findings are human-readable; an empty slice means the
// file is structurally sound.
func ValidateStructure(t *Table) []string {
	var findings []string

	if len(t.Columns) == 0 || allBlank(t.Columns) || len(t.Rows) == 0 {
		findings = append(findings, "file appears to be empty")
		return findings
	}

	var unnamed []string
	for i, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			unnamed = append(unnamed, fmt.Sprintf("column %d", i+1))
		}
	}
	if len(unnamed) > 0 {
		findings = append(findings, fmt.Sprintf("file contains unnamed columns: %s", strings.Join(unnamed, ", ")))
	}

	var empty []string
	for _, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			continue
		}
		hasValue := false
		for _, v := range t.ColumnValues(c) {
			if v != "" {
				hasValue = true
				break
			}
		}
		if !hasValue {
			empty = append(empty, c)
		}
	}
	if len(empty) > 0 {
		findings = append(findings, fmt.Sprintf("file contains completely empty columns: %s", strings.Join(empty, ", ")))
	}

	return findings
}

func allBlank(ss []string) bool {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
