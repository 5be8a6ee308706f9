package transformer

import (
	"sort"
	"strings"
)

// SeriesSeparator joins multiple series in one source cell.
const SeriesSeparator = ", "

// Dimension is a sorted, deduplicated lookup table bound for Table.Field.
type Dimension struct {
	Table  string
	Field  string
	Values []string
}

// ExtractLevels returns the distinct normalized levels.
func ExtractLevels(t *Table) Dimension {
	return Dimension{Table: "levels", Field: "level_name", Values: distinct(t, ColLevel, false)}
}

// ExtractFormats returns the distinct normalized formats.
func ExtractFormats(t *Table) Dimension {
	return Dimension{Table: "formats", Field: "format_name", Values: distinct(t, ColFormat, false)}
}

// ExtractSeries returns the distinct normalized series, splitting
// multi-series cells on SeriesSeparator first.
func ExtractSeries(t *Table) Dimension {
	return Dimension{Table: "series", Field: "series_name", Values: distinct(t, ColSeries, true)}
}

// SplitSeries explodes one series cell into normalized values, dropping
// empties and keeping repeats.
func SplitSeries(s string) []string {
	parts := strings.Split(s, SeriesSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = Normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func distinct(t *Table, col string, explode bool) []string {
	idx := t.Index(col)
	if idx < 0 {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, r := range t.Rows {
		s, ok := t.Text(r, idx)
		if !ok {
			continue
		}
		vals := []string{Normalize(s)}
		if explode {
			vals = SplitSeries(s)
		}
		for _, v := range vals {
			if v != "" {
				seen[v] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
