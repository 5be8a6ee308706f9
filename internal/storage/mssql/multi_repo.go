package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"catalog/internal/storage"
	"catalog/internal/storage/sqldb"
)

// SQL Server specifics:
//   - Surrogate keys are INT/BIGINT IDENTITY(1,1) columns.
//   - There is no CREATE TABLE IF NOT EXISTS; DDL is wrapped in OBJECT_ID guards.
//   - TEXT is deprecated, so "text" maps to NVARCHAR(MAX) and "varchar(n)" to
//     NVARCHAR(n) to keep non-Latin handout urls intact.
//   - A statement may carry at most 2100 parameters.

func init() {
	storage.Register("mssql", NewRepository)
}

// NewRepository opens a SQL Server database through the "sqlserver" driver.
// Connectivity is validated via PingContext.
func NewRepository(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return sqldb.New(raw, Dialect{}), nil
}

// Dialect implements sqldb.Dialect for SQL Server.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// Ident returns a bracket-quoted identifier for possibly schema-qualified names.
//
// Example:
//
//	"dbo.levels" -> [dbo].[levels]
func (Dialect) Ident(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func (Dialect) MaxParams() int { return 2000 }

func (d Dialect) DropTableSQL(name string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", name, d.Ident(name))
}

// CreateTableSQL wraps CREATE TABLE in an OBJECT_ID guard so EnsureTables
// stays idempotent.
func (d Dialect) CreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var parts []string

	if t.PrimaryKey != nil {
		pkDef, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", err
		}
		parts = append(parts, pkDef)
	}

	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, def)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}

	constraints, err := sqldb.ConstraintDefs(t, mssqlIdent)
	if err != nil {
		return "", err
	}
	parts = append(parts, constraints...)

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		t.Name,
		d.Ident(t.Name),
		strings.Join(parts, ", "),
	), nil
}

// mssqlPrimaryKeyDef returns a column definition for an identity primary key.
//
// Supported types (case-insensitive):
//   - "serial", "identity" variants -> INT IDENTITY(1,1) PRIMARY KEY
//   - "bigserial" -> BIGINT IDENTITY(1,1) PRIMARY KEY
//   - otherwise uses pk.Type verbatim with PRIMARY KEY.
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("mssql: primary key name is empty")
	}
	typ := strings.ToLower(strings.TrimSpace(pk.Type))
	switch typ {
	case "serial", "int identity", "integer identity", "identity":
		return fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	case "bigserial":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), pk.Type), nil
	}
}

// mssqlColumnDef builds a SQL Server column definition from storage.ColumnSpec.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(mssqlType(c.Type))

	if sqldb.NotNull(c) {
		b.WriteString(" NOT NULL")
	} else {
		b.WriteString(" NULL")
	}
	if strings.TrimSpace(c.References) != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(c.References)
	}

	return b.String(), nil
}

var varcharRe = regexp.MustCompile(`(?i)^varchar\s*\((\d+)\)$`)

// mssqlType maps portable column types to SQL Server types.
func mssqlType(t string) string {
	t = strings.TrimSpace(t)
	switch {
	case strings.EqualFold(t, "text"):
		return "NVARCHAR(MAX)"
	case varcharRe.MatchString(t):
		return "NVARCHAR(" + varcharRe.FindStringSubmatch(t)[1] + ")"
	default:
		return t
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

var _ sqldb.Dialect = Dialect{}
