package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"catalog/internal/storage"
	"catalog/internal/storage/sqldb"
)

// Key design points vs Postgres:
//   - SQLite only auto-generates ids for "INTEGER PRIMARY KEY" columns, so
//     serial/bigserial surrogate keys are translated to that form.
//   - Foreign keys are only enforced when PRAGMA foreign_keys=ON, which is a
//     per-connection setting. The pool is pinned to a single connection so the
//     pragma holds for every statement and ":memory:" databases stay shared.

func init() {
	storage.Register("sqlite", NewRepository)
}

// NewRepository opens a SQLite database through the pure-Go modernc driver.
func NewRepository(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := Open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return sqldb.New(db, Dialect{}), nil
}

// Open returns a single-connection *sql.DB with foreign keys enforced.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return db, nil
}

// Dialect implements sqldb.Dialect for SQLite.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) Ident(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqlIdent(strings.TrimSpace(p))
	}
	return strings.Join(parts, ".")
}

// MaxParams stays at the historical SQLITE_MAX_VARIABLE_NUMBER.
func (Dialect) MaxParams() int { return 999 }

func (d Dialect) DropTableSQL(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.Ident(name))
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string

	if t.PrimaryKey != nil {
		pkType := strings.TrimSpace(strings.ToLower(t.PrimaryKey.Type))

		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		switch pkType {
		case "serial", "bigserial", "int identity", "integer identity", "identity":
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Type) == "" {
			return "", fmt.Errorf("table %s: column name/type must be set", t.Name)
		}
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), c.Type)
		if sqldb.NotNull(c) {
			col += " NOT NULL"
		}
		if c.References != "" {
			col += " REFERENCES " + c.References
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	constraints, err := sqldb.ConstraintDefs(t, sqlIdent)
	if err != nil {
		return "", err
	}
	parts = append(parts, constraints...)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", d.Ident(t.Name), strings.Join(parts, ",\n  ")), nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

var _ sqldb.Dialect = Dialect{}
