// Command inspect prints the schema plan dataloft would build for a local
// CSV or XLSX file: inferred types, sanitized names, and the header
// classification verdict. Useful for checking a file before uploading it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"dataloft/internal/classify"
	"dataloft/internal/inference"
	"dataloft/internal/sanitize"
	"dataloft/internal/tabular"
)

func main() {
	var (
		verbose      bool
		asJSON       bool
		showClassify bool
	)
	flag.BoolVar(&verbose, "v", false, "log per-column detection decisions")
	flag.BoolVar(&asJSON, "json", false, "emit the plan as JSON")
	flag.BoolVar(&showClassify, "classify", true, "include the header classification report")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: inspect [-v] [-json] file.csv|file.xlsx")
		os.Exit(2)
	}
	path := flag.Arg(0)

	kind, ok := tabular.DetectKind(path)
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported file type: %s\n", path)
		os.Exit(1)
	}

	t, err := tabular.Load(path, kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load: %v\n", err)
		os.Exit(1)
	}

	engine := &inference.Engine{}
	if verbose {
		engine.Logger = log.New(os.Stderr, "", 0)
	}
	san := sanitize.New(sanitize.DefaultConfig())
	mapping := san.NewMapping(t.Columns)

	type column struct {
		Original  string `json:"original"`
		Sanitized string `json:"sanitized"`
		Type      string `json:"type"`
	}
	columns := make([]column, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ := engine.Detect(t.ColumnValues(c), c)
		columns = append(columns, column{Original: c, Sanitized: mapping[c], Type: typ.String()})
	}

	var report *classify.Report
	if showClassify {
		rep := classify.New(classify.DefaultConfig()).Classify(t.Columns)
		report = &rep
	}

	if asJSON {
		out := map[string]any{
			"file":    path,
			"kind":    kind,
			"rows":    len(t.Rows),
			"columns": columns,
		}
		if report != nil {
			out["classification"] = report
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("%s: %d columns, %d rows\n\n", path, len(t.Columns), len(t.Rows))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORIGINAL\tSANITIZED\tTYPE")
	for _, c := range columns {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Original, c.Sanitized, c.Type)
	}
	w.Flush()

	if report != nil {
		fmt.Printf("\nheader classification: ")
		if report.ValidationSuccess {
			fmt.Println("ok")
		} else {
			fmt.Println("missing required roles")
		}
		for _, m := range report.Matches {
			if m.Found {
				fmt.Printf("  %-18s -> %q (score=%d via %s)\n", m.Role, m.Column, m.Score, m.Method)
			}
		}
		for _, rec := range report.Recommendations {
			fmt.Printf("  note: %s\n", rec)
		}
	}
}
