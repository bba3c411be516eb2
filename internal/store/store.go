// Package store defines the backend-agnostic dynamic table interface and
// the registry the concrete backends plug into.
//
// All DDL and DML against dynamically created tables flows through a Store.
// Identifier quoting and type rendering live inside each backend so that no
// caller ever splices user-derived text into SQL.
package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"dataloft/internal/schema"
)

// Config selects and connects a backend.
type Config struct {
	Kind string
	DSN  string
}

// ColumnInfo is one entry of a table description, in ordinal position
// order.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Store manages dynamically created tables on one relational backend.
//
// Error contract:
//   - Create and Drop fail closed: a DDL error comes back as an error,
//     never a panic. Drop treats "table does not exist" as success.
//   - InsertBatch never returns an error: a failed multi-row insert is
//     captured as one entry in the returned error list and the caller
//     decides whether to retry or skip the batch.
type Store interface {
	Close()

	// Create issues DDL for tableName: a surrogate __sys_id primary key,
	// one column per plan entry, the two system timestamp columns, and a
	// secondary index on the insertion-time column.
	Create(ctx context.Context, tableName string, plan schema.Plan) error

	// Drop removes the table. Idempotent.
	Drop(ctx context.Context, tableName string) error

	// Exists reports whether the table is present.
	Exists(ctx context.Context, tableName string) (bool, error)

	// Describe returns the table's live columns in ordinal order,
	// including the system columns.
	Describe(ctx context.Context, tableName string) ([]ColumnInfo, error)

	// InsertBatch projects rows keyed by original column names through
	// mapping into sanitized column order and issues a single multi-row
	// insert. Returns how many rows went in and any accumulated errors.
	InsertBatch(ctx context.Context, tableName string, rows []map[string]any, mapping map[string]string) (int, []string)

	// Preview returns up to limit rows for display, system columns
	// excluded.
	Preview(ctx context.Context, tableName string, limit int) ([]string, [][]any, error)

	// Count returns the current row count.
	Count(ctx context.Context, tableName string) (int64, error)
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateName reports whether a table name is safe to use in DDL: letter
// first, identifier characters only, within the 63-character backend limit.
// Every backend checks this before any statement is built.
func ValidateName(name string) bool {
	return len(name) <= 63 && tableNameRe.MatchString(name)
}

/* ---- backend registry (one factory per kind) ---- */

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register installs a backend factory under a kind ("postgres", "sqlite",
// "mssql"). Called from init() in backend packages; duplicate registration
// panics to fail fast on ambiguous wiring.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("store: Register called with empty kind")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("store: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store for the configured backend kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("store: missing kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("store: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
