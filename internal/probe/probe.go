// Package probe inspects a course export without a database: it reports
// per-column fill and uniqueness, how each handout column resolves, the
// dimension sizes a seed would produce, and every problem that would make
// the seed fail.
package probe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"catalog/internal/multitable"
	"catalog/internal/transformer"
)

type Options struct {
	HandoutLanguages []string // nil means multitable.DefaultHandoutLanguages
	StripHTML        bool
	Resolver         *transformer.LanguageResolver
}

// ColumnStats describes one raw column.
type ColumnStats struct {
	Name     string `json:"name"`
	Filled   int    `json:"filled"`
	Distinct int    `json:"distinct"`
}

// HandoutStats describes one handout column.
type HandoutStats struct {
	Column   string `json:"column"`
	Token    string `json:"token"`
	Code     string `json:"code,omitempty"`
	Resolved bool   `json:"resolved"`
	Listed   bool   `json:"listed"`
	URLs     int    `json:"urls"`
}

type Report struct {
	Rows       int            `json:"rows"`
	Digest     string         `json:"digest"`
	Columns    []ColumnStats  `json:"columns"`
	Handouts   []HandoutStats `json:"handouts"`
	Dimensions map[string]int `json:"dimensions,omitempty"`
	Problems   []string       `json:"problems"`
}

// OK reports whether a seed of this export would pass validation.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// Inspect builds a Report for raw. It never fails; problems are collected in
// Report.Problems.
func Inspect(raw *transformer.Table, opt Options) Report {
	languages := opt.HandoutLanguages
	if len(languages) == 0 {
		languages = multitable.DefaultHandoutLanguages
	}
	resolver := opt.Resolver
	if resolver == nil {
		resolver = transformer.NewLanguageResolver(nil)
	}

	rep := Report{
		Rows:     raw.Len(),
		Digest:   transformer.Digest(raw),
		Columns:  columnStats(raw),
		Problems: []string{},
	}

	listed := make(map[string]bool, len(languages))
	for _, l := range languages {
		listed[transformer.Normalize(l)] = true
	}
	for _, hc := range transformer.HandoutColumns(raw) {
		code, ok := resolver.Resolve(hc.Token)
		hs := HandoutStats{
			Column:   hc.Column,
			Token:    hc.Token,
			Code:     code,
			Resolved: ok,
			Listed:   listed[hc.Token],
			URLs:     filled(raw, raw.Index(hc.Column)),
		}
		rep.Handouts = append(rep.Handouts, hs)
		if !ok {
			rep.Problems = append(rep.Problems, fmt.Sprintf("handout column %q: unknown language %q", hc.Column, hc.Token))
		}
	}

	clean, err := transformer.Preprocess(raw, transformer.PreprocessOptions{StripHTML: opt.StripHTML})
	if err != nil {
		rep.Problems = append(rep.Problems, err.Error())
		return rep
	}

	langs, err := transformer.ExtractLanguages(clean, resolver)
	var lre *transformer.LanguageResolutionError
	if err != nil && !errors.As(err, &lre) {
		rep.Problems = append(rep.Problems, err.Error())
	}
	rep.Dimensions = map[string]int{"languages": len(langs), "courses": clean.Len()}
	for _, d := range []transformer.Dimension{
		transformer.ExtractLevels(clean),
		transformer.ExtractFormats(clean),
		transformer.ExtractSeries(clean),
	} {
		rep.Dimensions[d.Table] = len(d.Values)
	}

	rep.Problems = append(rep.Problems, danglingPrerequisites(clean)...)
	return rep
}

func filled(t *transformer.Table, idx int) int {
	n := 0
	for _, r := range t.Rows {
		if _, ok := t.Text(r, idx); ok {
			n++
		}
	}
	return n
}

func columnStats(t *transformer.Table) []ColumnStats {
	out := make([]ColumnStats, len(t.Columns))
	for i, c := range t.Columns {
		seen := make(map[string]struct{})
		n := 0
		for _, r := range t.Rows {
			s, ok := t.Text(r, i)
			if !ok {
				continue
			}
			n++
			seen[s] = struct{}{}
		}
		out[i] = ColumnStats{Name: c, Filled: n, Distinct: len(seen)}
	}
	return out
}

// danglingPrerequisites lists prerequisites naming no course in the export,
// and courses that require themselves.
func danglingPrerequisites(clean *transformer.Table) []string {
	preIdx := clean.Index(transformer.ColPrerequisite)
	if preIdx < 0 {
		return nil
	}
	nameIdx := clean.Index(transformer.ColCourseName)
	names := make(map[string]bool, clean.Len())
	for _, r := range clean.Rows {
		n, _ := clean.Text(r, nameIdx)
		names[transformer.Normalize(n)] = true
	}

	var out []string
	for _, r := range clean.Rows {
		p, ok := clean.Text(r, preIdx)
		if !ok {
			continue
		}
		n, _ := clean.Text(r, nameIdx)
		switch {
		case transformer.Normalize(p) == transformer.Normalize(n):
			out = append(out, fmt.Sprintf("course %q lists itself as its prerequisite", n))
		case !names[transformer.Normalize(p)]:
			out = append(out, fmt.Sprintf("course %q: prerequisite %q is not a course", n, p))
		}
	}
	return out
}

// Format renders r as an aligned text report.
func Format(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows=%d\tdigest=%s\n", r.Rows, r.Digest)

	fmt.Fprintf(&b, "\n%-24s\t%-6s\t%-8s\tratio\n", "column", "filled", "distinct")
	for _, c := range r.Columns {
		ratio := 0.0
		if c.Filled > 0 {
			ratio = float64(c.Distinct) / float64(c.Filled)
		}
		fmt.Fprintf(&b, "%-24s\t%-6d\t%-8d\t%.1f%%\n", c.Name, c.Filled, c.Distinct, ratio*100)
	}

	if len(r.Handouts) > 0 {
		fmt.Fprintf(&b, "\n%-24s\t%-10s\tcode\tloaded\turls\n", "handout column", "language")
		for _, h := range r.Handouts {
			code := h.Code
			if !h.Resolved {
				code = "??"
			}
			fmt.Fprintf(&b, "%-24s\t%-10s\t%s\t%t\t%d\n", h.Column, h.Token, code, h.Listed && h.Resolved, h.URLs)
		}
	}

	if len(r.Dimensions) > 0 {
		keys := make([]string, 0, len(r.Dimensions))
		for k := range r.Dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%d ", k, r.Dimensions[k])
		}
		b.WriteString("\n")
	}

	if r.OK() {
		b.WriteString("\nno problems found\n")
	} else {
		fmt.Fprintf(&b, "\n%d problem(s):\n", len(r.Problems))
		for _, p := range r.Problems {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	return b.String()
}
