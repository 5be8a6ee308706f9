package sqldb

import (
	"fmt"
	"strings"

	"catalog/internal/storage"
)

// ConstraintDefs renders the table-level UNIQUE and PRIMARY KEY constraints
// of t. The syntax is shared by Postgres, SQLite and SQL Server; only
// identifier quoting differs.
func ConstraintDefs(t storage.TableSpec, ident func(string) string) ([]string, error) {
	if len(t.Constraints) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(t.Constraints))
	for _, c := range t.Constraints {
		kind := strings.ToLower(strings.TrimSpace(c.Kind))

		var keyword string
		switch kind {
		case storage.ConstraintUnique:
			keyword = "UNIQUE"
		case storage.ConstraintPrimaryKey:
			if t.PrimaryKey != nil {
				return nil, fmt.Errorf("table %s: primary_key constraint conflicts with surrogate key %s", t.Name, t.PrimaryKey.Name)
			}
			keyword = "PRIMARY KEY"
		default:
			return nil, fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		if len(c.Columns) == 0 {
			return nil, fmt.Errorf("table %s: %s constraint requires columns", t.Name, kind)
		}

		cols := make([]string, 0, len(c.Columns))
		for _, col := range c.Columns {
			cols = append(cols, ident(strings.TrimSpace(col)))
		}
		out = append(out, fmt.Sprintf("%s (%s)", keyword, strings.Join(cols, ", ")))
	}
	return out, nil
}

// NotNull reports whether a column is rendered NOT NULL. Columns are NOT NULL
// unless explicitly marked nullable.
func NotNull(c storage.ColumnSpec) bool {
	return c.Nullable == nil || !*c.Nullable
}
