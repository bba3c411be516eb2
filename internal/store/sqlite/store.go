package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"dataloft/internal/sanitize"
	"dataloft/internal/schema"
	"dataloft/internal/store"
)

// TableStore implements store.Store for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has loose type affinity, so temporal columns are declared TEXT
//     and callers are expected to write RFC3339 strings into them.
//   - The surrogate key uses INTEGER PRIMARY KEY AUTOINCREMENT to keep ids
//     monotonic even after deletes, matching the other backends' serials.
type TableStore struct {
	db *sql.DB
}

func init() {
	store.Register("sqlite", New)
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &TableStore{db: db}, nil
}

func (s *TableStore) Close() { _ = s.db.Close() }

func (s *TableStore) Create(ctx context.Context, tableName string, plan schema.Plan) error {
	if !store.ValidateName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}

	ddl, idx := buildCreateSQL(tableName, plan)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(tableName))
		return fmt.Errorf("create index on %s: %w", tableName, err)
	}
	return nil
}

func (s *TableStore) Drop(ctx context.Context, tableName string) error {
	if !store.ValidateName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(tableName)); err != nil {
		return fmt.Errorf("drop table %s: %w", tableName, err)
	}
	return nil
}

func (s *TableStore) Exists(ctx context.Context, tableName string) (bool, error) {
	const q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, tableName).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s: %w", tableName, err)
	}
	return n > 0, nil
}

// Describe uses PRAGMA table_info, which returns columns in declaration
// order. The table name cannot be parameterized inside a PRAGMA, so it is
// validated and quoted instead.
func (s *TableStore) Describe(ctx context.Context, tableName string) ([]store.ColumnInfo, error) {
	if !store.ValidateName(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}

	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+sqlIdent(tableName)+")")
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", tableName, err)
	}
	defer rows.Close()

	var out []store.ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("describe %s: %w", tableName, err)
		}
		out = append(out, store.ColumnInfo{Name: name, Type: typ, Nullable: notNull == 0})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", tableName, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("describe %s: no such table", tableName)
	}
	return out, nil
}

func (s *TableStore) InsertBatch(ctx context.Context, tableName string, rows []map[string]any, mapping map[string]string) (int, []string) {
	if len(rows) == 0 {
		return 0, nil
	}
	if !store.ValidateName(tableName) {
		return 0, []string{fmt.Sprintf("invalid table name %q", tableName)}
	}

	columns, values := store.ProjectRows(rows, mapping)
	if len(columns) == 0 {
		return 0, []string{"empty column mapping"}
	}

	sqlText, args := buildInsertSQL(tableName, columns, values)
	res, err := s.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, []string{fmt.Sprintf("insert into %s: %v", tableName, err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		// The insert committed; fall back to the batch size.
		return len(rows), nil
	}
	return int(n), nil
}

func (s *TableStore) Preview(ctx context.Context, tableName string, limit int) ([]string, [][]any, error) {
	cols, err := s.Describe(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}
	names := userColumns(cols)
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("preview %s: no user columns", tableName)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(sqlIdent(tableName))
	b.WriteString(" ORDER BY ")
	b.WriteString(sqlIdent(sanitize.SystemID))
	b.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	rows, err := s.db.QueryContext(ctx, b.String())
	if err != nil {
		return nil, nil, fmt.Errorf("preview %s: %w", tableName, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(names))
		dests := make([]any, len(names))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, nil, fmt.Errorf("preview %s: %w", tableName, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("preview %s: %w", tableName, err)
	}
	return names, out, nil
}

func (s *TableStore) Count(ctx context.Context, tableName string) (int64, error) {
	if !store.ValidateName(tableName) {
		return 0, fmt.Errorf("invalid table name %q", tableName)
	}
	var n int64
	q := "SELECT COUNT(*) FROM " + sqlIdent(tableName)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return n, nil
}

/* ---------- SQL builders ---------- */

func buildCreateSQL(tableName string, plan schema.Plan) (ddl string, index string) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(sqlIdent(tableName))
	b.WriteString(" (")
	b.WriteString(sqlIdent(sanitize.SystemID))
	b.WriteString(" INTEGER PRIMARY KEY AUTOINCREMENT")

	for _, c := range plan.Columns {
		b.WriteString(", ")
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(renderType(c.Type))
	}

	b.WriteString(", ")
	b.WriteString(sqlIdent(sanitize.SystemCreatedAt))
	b.WriteString(" TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')), ")
	b.WriteString(sqlIdent(sanitize.SystemUpdatedAt))
	b.WriteString(" TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')))")

	idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		sqlIdent("idx_"+tableName+"_created"),
		sqlIdent(tableName),
		sqlIdent(sanitize.SystemCreatedAt),
	)
	return b.String(), idx
}

func buildInsertSQL(tableName string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(tableName))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// renderType maps the neutral type onto SQLite affinities. Temporal kinds
// become TEXT so values round-trip as RFC3339 strings.
func renderType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindTimestamp, schema.KindDate:
		return "TEXT"
	case schema.KindVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func userColumns(cols []store.ColumnInfo) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if strings.HasPrefix(c.Name, "__sys_") {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}
