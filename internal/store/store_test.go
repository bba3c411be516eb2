package store

import (
	"context"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ok   bool
	}{
		{"user_42_sales_20240315_103045", true},
		{"t", true},
		{"Table_1", true},
		{"", false},
		{"1table", false},
		{"_table", false},
		{"bad-name", false},
		{"bad name", false},
		{`injec"tion`, false},
		{strings.Repeat("a", 63), true},
		{strings.Repeat("a", 64), false},
	}
	for _, tc := range cases {
		if got := ValidateName(tc.name); got != tc.ok {
			t.Fatalf("ValidateName(%q) = %v, want %v", tc.name, got, tc.ok)
		}
	}
}

func TestProjectRows_DeterministicOrderAndNulls(t *testing.T) {
	t.Parallel()

	mapping := map[string]string{
		"Zeta":  "zeta",
		"Alpha": "alpha",
		"Mid":   "mid",
	}
	rows := []map[string]any{
		{"Zeta": 1, "Alpha": "a", "Mid": true},
		{"Alpha": "b"}, // missing keys become NULL
	}

	columns, values := ProjectRows(rows, mapping)

	want := []string{"alpha", "mid", "zeta"}
	for i, c := range want {
		if columns[i] != c {
			t.Fatalf("columns = %v, want %v", columns, want)
		}
	}
	if values[0][0] != "a" || values[0][1] != true || values[0][2] != 1 {
		t.Fatalf("row 0 = %v", values[0])
	}
	if values[1][1] != nil || values[1][2] != nil {
		t.Fatalf("missing cells not NULL: %v", values[1])
	}
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Kind: "oracle"}); err == nil {
		t.Fatalf("expected error for unregistered kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	t.Parallel()

	f := func(context.Context, Config) (Store, error) { return nil, nil }
	Register("dup_test_kind", f)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("dup_test_kind", f)
}
