package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"dataloft/internal/sanitize"
	"dataloft/internal/schema"
	"dataloft/internal/store"
)

// TableStore implements store.Store for Postgres.
//
// All statements are built with explicit identifier quoting (pgIdent) and
// numbered placeholders; user-derived text never reaches the SQL stream
// unquoted.
type TableStore struct {
	pool *pgxpool.Pool
}

// New connects a pool and returns a Postgres-backed store.
func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &TableStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *TableStore) Close() {
	s.pool.Close()
}

// Create builds and executes the dataset table DDL plus the secondary index
// on the insertion-time column.
func (s *TableStore) Create(ctx context.Context, tableName string, plan schema.Plan) error {
	if !store.ValidateName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}

	ddl, idx := buildCreateSQL(tableName, plan)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		// The table exists at this point; roll the DDL back by hand so a
		// half-created dataset never survives.
		_, _ = s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(tableName))
		return fmt.Errorf("create index on %s: %w", tableName, err)
	}
	return nil
}

// Drop removes the table. Missing tables are not an error.
func (s *TableStore) Drop(ctx context.Context, tableName string) error {
	if !store.ValidateName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(tableName)); err != nil {
		return fmt.Errorf("drop table %s: %w", tableName, err)
	}
	return nil
}

// Exists consults information_schema for the table.
func (s *TableStore) Exists(ctx context.Context, tableName string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, tableName).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists %s: %w", tableName, err)
	}
	return ok, nil
}

// Describe returns live column metadata in ordinal order.
func (s *TableStore) Describe(ctx context.Context, tableName string) ([]store.ColumnInfo, error) {
	const q = `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", tableName, err)
	}
	defer rows.Close()

	var out []store.ColumnInfo
	for rows.Next() {
		var c store.ColumnInfo
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, fmt.Errorf("describe %s: %w", tableName, err)
		}
		c.Nullable = nullable == "YES"
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", tableName, err)
	}
	return out, nil
}

// InsertBatch issues one multi-row INSERT for the batch. A statement failure
// is reported in the error list, never as a hard error, so the caller can
// skip the batch and keep going.
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

	sql, args := buildInsertSQL(tableName, columns, values)
	cmd, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, []string{fmt.Sprintf("insert into %s: %v", tableName, err)}
	}
	return int(cmd.RowsAffected()), nil
}

// Preview returns up to limit rows with system columns filtered out.
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
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(tableName))
	b.WriteString(" ORDER BY ")
	b.WriteString(pgIdent(sanitize.SystemID))
	b.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	rows, err := s.pool.Query(ctx, b.String())
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

// Count returns the table's row count.
func (s *TableStore) Count(ctx context.Context, tableName string) (int64, error) {
	if !store.ValidateName(tableName) {
		return 0, fmt.Errorf("invalid table name %q", tableName)
	}
	var n int64
	q := "SELECT COUNT(*) FROM " + pgIdent(tableName)
	if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return n, nil
}

/* ---------- SQL builders (pure, tested without a database) ---------- */

// buildCreateSQL renders the CREATE TABLE statement and the companion index
// statement for a dataset table.
func buildCreateSQL(tableName string, plan schema.Plan) (ddl string, index string) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgIdent(tableName))
	b.WriteString(" (")
	b.WriteString(pgIdent(sanitize.SystemID))
	b.WriteString(" BIGSERIAL PRIMARY KEY")

	for _, c := range plan.Columns {
		b.WriteString(", ")
		b.WriteString(pgIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(renderType(c.Type))
	}

	b.WriteString(", ")
	b.WriteString(pgIdent(sanitize.SystemCreatedAt))
	b.WriteString(" TIMESTAMPTZ NOT NULL DEFAULT NOW(), ")
	b.WriteString(pgIdent(sanitize.SystemUpdatedAt))
	b.WriteString(" TIMESTAMPTZ NOT NULL DEFAULT NOW())")

	idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		pgIdent("idx_"+tableName+"_created"),
		pgIdent(tableName),
		pgIdent(sanitize.SystemCreatedAt),
	)
	return b.String(), idx
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
// Placeholders are numbered row-major starting at $1.
func buildInsertSQL(tableName string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(tableName))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// renderType maps a backend-neutral column type onto Postgres DDL.
func renderType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInteger:
		return "BIGINT"
	case schema.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindDate:
		return "DATE"
	case schema.KindVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	default:
		return "TEXT"
	}
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(id string) string {
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
