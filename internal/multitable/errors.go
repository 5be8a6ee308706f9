package multitable

import (
	"fmt"
	"strings"
)

// ReferentialIntegrityError reports a natural-key to surrogate-key mapping
// that is not bijective over the observed values. SourceCounts are the
// sorted per-value occurrence counts, ResolvedCounts the sorted per-id ones.
type ReferentialIntegrityError struct {
	Table          string
	Field          string
	SourceCounts   []int
	ResolvedCounts []int
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("referential integrity: %s.%s: source counts %v != resolved id counts %v",
		e.Table, e.Field, e.SourceCounts, e.ResolvedCounts)
}

// RowCountMismatch is one table whose stored row count differs from the
// number of rows derived for it.
type RowCountMismatch struct {
	Table    string
	Expected int64
	Actual   int64
}

func (m RowCountMismatch) Error() string {
	return fmt.Sprintf("row count mismatch: %s expected=%d actual=%d", m.Table, m.Expected, m.Actual)
}

// AuditError collects every RowCountMismatch found by the post-load audit.
type AuditError struct {
	Mismatches []RowCountMismatch
}

func (e *AuditError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s expected=%d actual=%d", m.Table, m.Expected, m.Actual))
	}
	return "row count audit failed: " + strings.Join(parts, "; ")
}

func (e *AuditError) Unwrap() []error {
	out := make([]error, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		out = append(out, m)
	}
	return out
}

// DestinationNotEmptyError is returned when a destination table already has
// rows at the start of a run.
type DestinationNotEmptyError struct {
	Table string
	Rows  int64
}

func (e *DestinationNotEmptyError) Error() string {
	return fmt.Sprintf("destination table %s already has %d rows; rerun with -drop-all to reseed", e.Table, e.Rows)
}

// SelfPrerequisiteError is returned when a course names itself as its
// prerequisite.
type SelfPrerequisiteError struct {
	Course string
}

func (e *SelfPrerequisiteError) Error() string {
	return fmt.Sprintf("referential integrity: course %q lists itself as its prerequisite", e.Course)
}
