package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"dataloft/internal/sanitize"
	"dataloft/internal/schema"
	"dataloft/internal/store"
)

// paramLimit caps parameters per statement. SQL Server rejects requests
// above 2100 parameters; wide files can push a full batch past that, so
// inserts are sub-chunked to stay under it.
const paramLimit = 2000

// TableStore implements store.Store for SQL Server.
type TableStore struct {
	db *sql.DB
}

func init() {
	store.Register("mssql", New)
}

func New(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
		_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+mssqlIdent(tableName))
		return fmt.Errorf("create index on %s: %w", tableName, err)
	}
	return nil
}

func (s *TableStore) Drop(ctx context.Context, tableName string) error {
	if !store.ValidateName(tableName) {
		return fmt.Errorf("invalid table name %q", tableName)
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+mssqlIdent(tableName)); err != nil {
		return fmt.Errorf("drop table %s: %w", tableName, err)
	}
	return nil
}

func (s *TableStore) Exists(ctx context.Context, tableName string) (bool, error) {
	const q = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1`
	var n int
	if err := s.db.QueryRowContext(ctx, q, tableName).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s: %w", tableName, err)
	}
	return n > 0, nil
}

func (s *TableStore) Describe(ctx context.Context, tableName string) ([]store.ColumnInfo, error) {
	const q = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`

	rows, err := s.db.QueryContext(ctx, q, tableName)
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

	rowsPerStmt := paramLimit / len(columns)
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	inserted := 0
	var errs []string
	for start := 0; start < len(values); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(values) {
			end = len(values)
		}
		part := values[start:end]

		sqlText, args := buildInsertSQL(tableName, columns, part)
		res, err := s.db.ExecContext(ctx, sqlText, args...)
		if err != nil {
			errs = append(errs, fmt.Sprintf("insert into %s rows %d-%d: %v", tableName, start, end-1, err))
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		} else {
			inserted += len(part)
		}
	}
	return inserted, errs
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
	b.WriteString(fmt.Sprintf("SELECT TOP %d ", limit))
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(mssqlIdent(tableName))
	b.WriteString(" ORDER BY ")
	b.WriteString(mssqlIdent(sanitize.SystemID))

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
	q := "SELECT COUNT(*) FROM " + mssqlIdent(tableName)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return n, nil
}

/* ---------- SQL builders ---------- */

func buildCreateSQL(tableName string, plan schema.Plan) (ddl string, index string) {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(mssqlIdent(tableName))
	b.WriteString(" (")
	b.WriteString(mssqlIdent(sanitize.SystemID))
	b.WriteString(" BIGINT IDENTITY(1,1) PRIMARY KEY")

	for _, c := range plan.Columns {
		b.WriteString(", ")
		b.WriteString(mssqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(renderType(c.Type))
	}

	b.WriteString(", ")
	b.WriteString(mssqlIdent(sanitize.SystemCreatedAt))
	b.WriteString(" DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME(), ")
	b.WriteString(mssqlIdent(sanitize.SystemUpdatedAt))
	b.WriteString(" DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME())")

	idx := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		mssqlIdent("idx_"+tableName+"_created"),
		mssqlIdent(tableName),
		mssqlIdent(sanitize.SystemCreatedAt),
	)
	return b.String(), idx
}

// buildInsertSQL constructs one multi-row INSERT using @pN placeholders.
func buildInsertSQL(tableName string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(tableName))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
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
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// renderType maps the neutral type onto T-SQL. Unbounded text becomes
// NVARCHAR(MAX); booleans become BIT.
func renderType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInteger:
		return "BIGINT"
	case schema.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.KindBoolean:
		return "BIT"
	case schema.KindTimestamp:
		return "DATETIME2"
	case schema.KindDate:
		return "DATE"
	case schema.KindVarchar:
		return fmt.Sprintf("NVARCHAR(%d)", t.Length)
	default:
		return "NVARCHAR(MAX)"
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
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
