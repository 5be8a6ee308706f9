// Package sqldb is the database/sql implementation of storage.Repository shared
// by the SQLite and SQL Server backends.
//
// The two backends differ only in SQL dialect (placeholders, quoting, DDL and
// parameter limits), which is captured by Dialect. Everything else, including
// transaction handling and row scanning, lives here once.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"catalog/internal/storage"
)

// Dialect captures the SQL differences between database/sql backends.
type Dialect interface {
	// Name is used in error messages ("sqlite", "mssql").
	Name() string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// Ident quotes an identifier. Schema-qualified names ("dbo.levels") are
	// quoted per part.
	Ident(name string) string

	// CreateTableSQL renders an idempotent CREATE TABLE statement.
	CreateTableSQL(t storage.TableSpec) (string, error)

	// DropTableSQL renders an idempotent DROP TABLE statement.
	DropTableSQL(name string) string

	// MaxParams is the bind parameter limit for one statement.
	MaxParams() int
}

// Repo implements storage.Repository over *sql.DB.
type Repo struct {
	db *sql.DB
	d  Dialect
}

// New wraps an open database handle. Repo takes ownership of db.
func New(db *sql.DB, d Dialect) *Repo {
	return &Repo{db: db, d: d}
}

// DB exposes the underlying handle (tests, diagnostics).
func (r *Repo) DB() *sql.DB { return r.db }

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates each table if it does not exist yet, in order.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		q, err := r.d.CreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s: create table %s: %w", r.d.Name(), t.Name, err)
		}
	}
	return nil
}

// DropTables drops each table if it exists, in order.
func (r *Repo) DropTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, err := r.db.ExecContext(ctx, r.d.DropTableSQL(t.Name)); err != nil {
			return fmt.Errorf("%s: drop table %s: %w", r.d.Name(), t.Name, err)
		}
	}
	return nil
}

// Begin opens a transaction.
func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", r.d.Name(), err)
	}
	return &Tx{tx: tx, d: r.d}, nil
}

// Tx implements storage.Tx over *sql.Tx.
type Tx struct {
	tx *sql.Tx
	d  Dialect
}

// InsertRows appends rows using multi-row INSERT ... VALUES statements,
// chunked to stay under the dialect's parameter limit.
func (t *Tx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("%s: InsertRows: table and columns are required", t.d.Name())
	}

	chunk := t.d.MaxParams() / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))

		q, args, err := BuildInsertSQL(t.d, table, columns, rows[start:end])
		if err != nil {
			return total, err
		}
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("%s: insert into %s: %w", t.d.Name(), table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			// Some drivers cannot report affected rows for multi-row inserts.
			n = int64(end - start)
		}
		total += n
	}
	return total, nil
}

// SelectAllKeyValue returns NormalizeKey(key) -> id for the whole table.
func (t *Tx) SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectAllKeyValue: table, keyColumn, valueColumn are required")
	}
	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, t.d.Ident(keyColumn), t.d.Ident(valueColumn), t.d.Ident(table))

	rows, err := t.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SelectAllKeyValue: query %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var k any
		var id sql.NullInt64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, fmt.Errorf("SelectAllKeyValue: scan %s: %w", table, err)
		}
		if !id.Valid {
			return nil, fmt.Errorf("%s: %s.%s is NULL; surrogate key not generated", t.d.Name(), table, valueColumn)
		}
		out[storage.NormalizeKey(k)] = id.Int64
	}
	return out, rows.Err()
}

// SelectAllKeyText returns NormalizeKey(key) -> NormalizeKey(value) for the whole table.
func (t *Tx) SelectAllKeyText(ctx context.Context, table, keyColumn, valueColumn string) (map[string]string, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectAllKeyText: table, keyColumn, valueColumn are required")
	}
	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, t.d.Ident(keyColumn), t.d.Ident(valueColumn), t.d.Ident(table))

	rows, err := t.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SelectAllKeyText: query %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v any
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("SelectAllKeyText: scan %s: %w", table, err)
		}
		out[storage.NormalizeKey(k)] = storage.NormalizeKey(v)
	}
	return out, rows.Err()
}

// CountRows returns SELECT COUNT(*) for table.
func (t *Tx) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.d.Ident(table))
	if err := t.tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", t.d.Name(), table, err)
	}
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", t.d.Name(), err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", t.d.Name(), err)
	}
	return nil
}

// BuildInsertSQL constructs a single multi-row INSERT statement and its args.
//
// It is pure so placeholder numbering and quoting can be tested without a
// database. Every row must have exactly len(columns) values.
func BuildInsertSQL(d Dialect, table string, columns []string, rows [][]any) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Ident(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Tx         = (*Tx)(nil)
)
