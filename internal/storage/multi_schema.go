// TableSpec lives here so both the engine and the backend packages can import it without cycles.
package storage

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

// PrimaryKeySpec describes a surrogate key column. It is never written by
// InsertRows.
type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // serial | bigserial
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	References string `json:"references,omitempty"`
	Nullable   *bool  `json:"nullable,omitempty"`
}

// Constraint kinds understood by every backend.
const (
	ConstraintUnique     = "unique"
	ConstraintPrimaryKey = "primary_key"
)

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique" | "primary_key"
	Columns []string `json:"columns"`
}

// ColumnNames returns the writable column names (the surrogate key excluded).
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Reversed returns tables in reverse order, e.g. children first for drops.
func Reversed(tables []TableSpec) []TableSpec {
	out := make([]TableSpec, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}
