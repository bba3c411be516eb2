package schema

import (
	"encoding/json"
	"testing"
)

func TestColumnType_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		typ  ColumnType
		want string
	}{
		{"integer", Integer(), "INTEGER"},
		{"decimal", Decimal(15, 6), "DECIMAL(15,6)"},
		{"boolean", Boolean(), "BOOLEAN"},
		{"timestamp", Timestamp(), "TIMESTAMP"},
		{"date", Date(), "DATE"},
		{"varchar", Varchar(120), "VARCHAR(120)"},
		{"text", Text(), "TEXT"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.typ.String(); got != tc.want {
				t.Fatalf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParse_RoundTrips(t *testing.T) {
	t.Parallel()

	for _, typ := range []ColumnType{
		Integer(), Decimal(15, 6), Boolean(), Timestamp(), Date(), Varchar(50), Text(),
	} {
		got := Parse(typ.String())
		if got != typ {
			t.Fatalf("Parse(%q) = %+v, want %+v", typ.String(), got, typ)
		}
	}
}

func TestParse_UnknownFallsBackToText(t *testing.T) {
	t.Parallel()

	if got := Parse("GEOMETRY"); got != Text() {
		t.Fatalf("Parse(GEOMETRY) = %+v, want TEXT", got)
	}
}

func TestColumnType_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := map[string]ColumnType{
		"price": Decimal(15, 6),
		"name":  Varchar(80),
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]ColumnType
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["price"] != in["price"] || out["name"] != in["name"] {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestPlanFromTypes_PreservesOrder(t *testing.T) {
	t.Parallel()

	order := []string{"b", "a", "c"}
	types := map[string]ColumnType{
		"a": Integer(),
		"b": Text(),
		"c": Boolean(),
	}
	plan := PlanFromTypes(order, types)

	names := plan.Names()
	for i, want := range order {
		if names[i] != want {
			t.Fatalf("Names()[%d] = %q, want %q", i, names[i], want)
		}
	}
	if typ, ok := plan.TypeOf("c"); !ok || typ != Boolean() {
		t.Fatalf("TypeOf(c) = %+v, %v", typ, ok)
	}
	if _, ok := plan.TypeOf("missing"); ok {
		t.Fatalf("TypeOf(missing) reported ok")
	}
}
