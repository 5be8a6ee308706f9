package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a repository.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic destination used by the seeding engine.
//
// It is intentionally minimal: DDL runs outside any session, and every row
// write or read-back happens through a Tx so a failed run can roll back as a
// unit.
type Repository interface {
	// Close releases any backend resources (connections, pools).
	//
	// Edge cases:
	//   - Callers should treat Close as "call once".
	Close()

	// EnsureTables creates tables and constraints that do not exist yet.
	// Tables are created in the given order, so parents must come first.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// DropTables drops the given tables if they exist, in the given order.
	// Children must come first.
	DropTables(ctx context.Context, tables []TableSpec) error

	// Begin opens a scoped read/write session.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a read/write session over the destination.
//
// Reads observe the session's own uncommitted writes.
type Tx interface {
	// InsertRows bulk-appends rows. Surrogate keys are never written; the
	// destination assigns them. Returns the number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// SelectAllKeyValue returns NormalizeKey(key) -> integer id for the whole table.
	SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error)

	// SelectAllKeyText returns NormalizeKey(key) -> NormalizeKey(value) for the
	// whole table. Used for natural-key dimensions (language name -> code).
	SelectAllKeyText(ctx context.Context, table, keyColumn, valueColumn string) (map[string]string, error)

	// CountRows returns the current row count of table.
	CountRows(ctx context.Context, table string) (int64, error)

	Commit(ctx context.Context) error

	// Rollback aborts the session. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

// Batch is a tabular batch bound for one destination table.
type Batch struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// ---- factories ----

// Factory opens a Repository for a registered backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
