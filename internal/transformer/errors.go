package transformer

import (
	"fmt"
	"strings"
)

// DataIntegrityError reports a required source field that is absent, has
// missing values after preprocessing, or repeats a course name.
type DataIntegrityError struct {
	Column string

	// Exactly one of the following describes the failure.
	Absent     bool     // column not in the header
	Missing    int      // rows with no value
	Duplicates []string // repeated values (course_name only)
}

func (e *DataIntegrityError) Error() string {
	switch {
	case e.Absent:
		return fmt.Sprintf("data integrity: required column %q is absent", e.Column)
	case len(e.Duplicates) > 0:
		return fmt.Sprintf("data integrity: column %s has duplicate values: %s", e.Column, strings.Join(e.Duplicates, ", "))
	default:
		return fmt.Sprintf("data integrity: column %s includes null values: %d", e.Column, e.Missing)
	}
}

// LanguageResolutionError reports a handout column whose language token does
// not map to a two-letter ISO 639-1 code.
type LanguageResolutionError struct {
	Column string
	Token  string
}

func (e *LanguageResolutionError) Error() string {
	return fmt.Sprintf("language resolution: column %q: no ISO 639-1 code for %q", e.Column, e.Token)
}

// HandoutColumnConflictError reports handout columns that carry the same
// language token ("handout" and "handout_english"). Only one of them could
// be loaded.
type HandoutColumnConflictError struct {
	Token   string
	Columns []string
}

func (e *HandoutColumnConflictError) Error() string {
	return fmt.Sprintf("handout columns %s all carry language %q", strings.Join(e.Columns, ", "), e.Token)
}
