package sqlite

import (
	"strings"
	"testing"

	"dataloft/internal/schema"
)

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	plan := schema.PlanFromTypes(
		[]string{"order_date", "qty"},
		map[string]schema.ColumnType{
			"order_date": schema.Date(),
			"qty":        schema.Integer(),
		},
	)
	ddl, idx := buildCreateSQL("user_1_orders_20240315_103045", plan)

	for _, want := range []string{
		`CREATE TABLE "user_1_orders_20240315_103045"`,
		`"__sys_id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"order_date" TEXT`,
		`"qty" INTEGER`,
		`"__sys_created_at" TEXT NOT NULL DEFAULT (strftime(`,
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("DDL missing %q:\n%s", want, ddl)
		}
	}
	if !strings.Contains(idx, `"idx_user_1_orders_20240315_103045_created"`) {
		t.Fatalf("index statement = %q", idx)
	}
}

func TestBuildInsertSQL_QuestionMarkPlaceholders(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL("t", []string{"a", "b"}, [][]any{
		{1, "x"},
		{2, "y"},
	})

	want := `INSERT INTO "t" ("a", "b") VALUES (?, ?), (?, ?)`
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 4 || args[2] != 2 {
		t.Fatalf("args = %v", args)
	}
}

func TestRenderType_TemporalKindsAreText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ  schema.ColumnType
		want string
	}{
		{schema.Integer(), "INTEGER"},
		{schema.Decimal(15, 6), "NUMERIC(15,6)"},
		{schema.Boolean(), "BOOLEAN"},
		{schema.Timestamp(), "TEXT"},
		{schema.Date(), "TEXT"},
		{schema.Varchar(50), "VARCHAR(50)"},
		{schema.Text(), "TEXT"},
	}
	for _, tc := range cases {
		if got := renderType(tc.typ); got != tc.want {
			t.Fatalf("renderType(%s) = %q, want %q", tc.typ, got, tc.want)
		}
	}
}
