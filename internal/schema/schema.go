// Package schema defines the column-plan value types shared by the
// inference engine and the dynamic table backends.
//
// A ColumnType is a backend-neutral description of a storage type. Backends
// render it into their own DDL; nothing outside a backend package should
// ever splice a type string into SQL directly.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind enumerates the storage types the inference engine can produce.
type Kind string

const (
	KindInteger   Kind = "integer"
	KindDecimal   Kind = "decimal"
	KindBoolean   Kind = "boolean"
	KindTimestamp Kind = "timestamp"
	KindDate      Kind = "date"
	KindVarchar   Kind = "varchar"
	KindText      Kind = "text"
)

// ColumnType describes one column's storage type.
//
// Length is meaningful only for KindVarchar. Precision/Scale are meaningful
// only for KindDecimal.
type ColumnType struct {
	Kind      Kind
	Length    int
	Precision int
	Scale     int
}

func Integer() ColumnType   { return ColumnType{Kind: KindInteger} }
func Boolean() ColumnType   { return ColumnType{Kind: KindBoolean} }
func Timestamp() ColumnType { return ColumnType{Kind: KindTimestamp} }
func Date() ColumnType      { return ColumnType{Kind: KindDate} }
func Text() ColumnType      { return ColumnType{Kind: KindText} }

// Decimal returns the fixed-precision numeric type used for non-integer
// numeric columns. Precision is bounded to keep storage predictable.
func Decimal(precision, scale int) ColumnType {
	return ColumnType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// Varchar returns a bounded text type of the given length.
func Varchar(n int) ColumnType {
	if n < 1 {
		n = 1
	}
	return ColumnType{Kind: KindVarchar, Length: n}
}

// String renders the canonical (Postgres-flavored) spelling of the type.
// This spelling is also what gets persisted in Dataset.column_types, so
// Parse must accept everything String can produce.
func (t ColumnType) String() string {
	switch t.Kind {
	case KindInteger:
		return "INTEGER"
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case KindBoolean:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindDate:
		return "DATE"
	case KindVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	default:
		return "TEXT"
	}
}

var (
	decimalRe = regexp.MustCompile(`^DECIMAL\((\d+),(\d+)\)$`)
	varcharRe = regexp.MustCompile(`^VARCHAR\((\d+)\)$`)
)

// Parse reverses String. Unknown spellings resolve to TEXT so that metadata
// written by an older build can never fail a newer one.
func Parse(s string) ColumnType {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "INTEGER", "BIGINT", "INT":
		return Integer()
	case "BOOLEAN", "BOOL":
		return Boolean()
	case "TIMESTAMP":
		return Timestamp()
	case "DATE":
		return Date()
	case "TEXT":
		return Text()
	}
	if m := decimalRe.FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[1])
		sc, _ := strconv.Atoi(m[2])
		return Decimal(p, sc)
	}
	if m := varcharRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Varchar(n)
	}
	return Text()
}

// MarshalText makes ColumnType round-trip through the JSON metadata columns
// as its canonical spelling rather than a struct.
func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ColumnType) UnmarshalText(b []byte) error {
	*t = Parse(string(b))
	return nil
}

// Column is one entry of a table plan: a sanitized identifier plus its
// inferred storage type.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Plan is the ordered column plan a dynamic table is created from.
// Order is significant: it fixes both DDL column order and insert order.
type Plan struct {
	Columns []Column `json:"columns"`
}

// Names returns the plan's column names in plan order.
func (p Plan) Names() []string {
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}

// TypeOf looks up the type for a column name.
func (p Plan) TypeOf(name string) (ColumnType, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return ColumnType{}, false
}

// Types returns the plan as a name -> type map, the shape persisted on a
// Dataset record.
func (p Plan) Types() map[string]ColumnType {
	out := make(map[string]ColumnType, len(p.Columns))
	for _, c := range p.Columns {
		out[c.Name] = c.Type
	}
	return out
}

// PlanFromTypes rebuilds a Plan from a persisted name -> type map using the
// given column order. Names missing from types fall back to TEXT.
func PlanFromTypes(order []string, types map[string]ColumnType) Plan {
	cols := make([]Column, 0, len(order))
	for _, n := range order {
		t, ok := types[n]
		if !ok {
			t = Text()
		}
		cols = append(cols, Column{Name: n, Type: t})
	}
	return Plan{Columns: cols}
}
