package transformer

import (
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical column names of the cleaned table.
const (
	ColClassTitle          = "class_title"
	ColCourseName          = "course_name"
	ColDescription         = "description"
	ColLevel               = "level"
	ColSeries              = "series"
	ColFormat              = "format"
	ColPrerequisite        = "prerequisite"
	ColAdditionalMaterials = "additional_materials"
)

// MissingLevel fills empty level cells. It lowercases to the "none" category.
const MissingLevel = "None"

// RequiredColumns must be present and fully populated after preprocessing.
var RequiredColumns = []string{ColCourseName, ColDescription, ColLevel, ColSeries, ColFormat}

// PreprocessOptions tunes Preprocess. The zero value is the standard cleaning.
type PreprocessOptions struct {
	// StripHTML reduces description markup to text.
	StripHTML bool
}

// Preprocess returns a cleaned copy of in:
//   - class_title is renamed to course_name (unless course_name exists);
//   - course_name and prerequisite are title-cased;
//   - missing level values become "None";
//   - optionally, description HTML is stripped.
//
// It fails with *DataIntegrityError when a required column is absent or still
// has missing values, or when two rows share a course name, and with
// *HandoutColumnConflictError when two handout columns name one language. in
// is never modified.
func Preprocess(in *Table, opt PreprocessOptions) (*Table, error) {
	t := in.Clone()

	if !t.Has(ColCourseName) {
		if i := t.Index(ColClassTitle); i >= 0 {
			t.Columns[i] = ColCourseName
		}
	}

	for _, col := range RequiredColumns {
		if !t.Has(col) {
			return nil, &DataIntegrityError{Column: col, Absent: true}
		}
	}
	if err := checkHandoutTokens(t); err != nil {
		return nil, err
	}

	// cases.Caser keeps state between calls; one per run.
	title := cases.Title(language.English)
	for _, col := range []string{ColCourseName, ColPrerequisite} {
		idx := t.Index(col)
		if idx < 0 {
			continue
		}
		for _, r := range t.Rows {
			if s, ok := t.Text(r, idx); ok {
				r.V[idx] = title.String(s)
			}
		}
	}

	levelIdx := t.Index(ColLevel)
	for _, r := range t.Rows {
		if _, ok := t.Text(r, levelIdx); !ok {
			r.V[levelIdx] = MissingLevel
		}
	}

	if opt.StripHTML {
		descIdx := t.Index(ColDescription)
		for _, r := range t.Rows {
			s, ok := t.Text(r, descIdx)
			if !ok {
				continue
			}
			text, err := StripHTML(s)
			if err != nil {
				return nil, err
			}
			r.V[descIdx] = text
		}
	}

	for _, col := range RequiredColumns {
		idx := t.Index(col)
		missing := 0
		for _, r := range t.Rows {
			if _, ok := t.Text(r, idx); !ok {
				missing++
			}
		}
		if missing > 0 {
			return nil, &DataIntegrityError{Column: col, Missing: missing}
		}
	}

	if dups := duplicates(t, t.Index(ColCourseName)); len(dups) > 0 {
		return nil, &DataIntegrityError{Column: ColCourseName, Duplicates: dups}
	}

	return t, nil
}

func duplicates(t *Table, idx int) []string {
	seen := make(map[string]int, len(t.Rows))
	for _, r := range t.Rows {
		s, _ := t.Text(r, idx)
		seen[s]++
	}
	var out []string
	for s, n := range seen {
		if n > 1 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
