package probe

import (
	"context"
	"strings"
	"testing"

	csvparser "catalog/internal/parser/csv"
	"catalog/internal/transformer"
)

func fixture(t *testing.T) *transformer.Table {
	t.Helper()
	tbl, err := csvparser.ReadFile(context.Background(), "../multitable/testdata/courses.csv", csvparser.Options{})
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return tbl
}

func TestInspect_Fixture(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	rep := Inspect(raw, Options{})
	if !rep.OK() {
		t.Fatalf("problems=%v, want none", rep.Problems)
	}
	if rep.Rows != 6 {
		t.Fatalf("rows=%d, want 6", rep.Rows)
	}
	if rep.Digest != transformer.Digest(raw) {
		t.Fatalf("digest=%q, want %q", rep.Digest, transformer.Digest(raw))
	}

	want := map[string]int{"levels": 4, "formats": 3, "series": 14, "languages": 6, "courses": 6}
	for k, v := range want {
		if rep.Dimensions[k] != v {
			t.Fatalf("dimensions[%s]=%d, want %d (all=%v)", k, rep.Dimensions[k], v, rep.Dimensions)
		}
	}

	if len(rep.Handouts) != 6 {
		t.Fatalf("handouts=%d, want 6", len(rep.Handouts))
	}
	en := rep.Handouts[0]
	if en.Column != "handout" || en.Token != "english" || en.Code != "en" || !en.Listed || en.URLs != 2 {
		t.Fatalf("english handout=%+v", en)
	}

	var format ColumnStats
	for _, c := range rep.Columns {
		if c.Name == "format" {
			format = c
		}
	}
	if format.Filled != 6 || format.Distinct != 3 {
		t.Fatalf("format stats=%+v, want filled=6 distinct=3", format)
	}
}

func TestInspect_UnknownHandoutLanguage(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	raw.Columns = append(raw.Columns, "handout_klingon")
	for _, r := range raw.Rows {
		r.V = append(r.V, nil)
	}

	rep := Inspect(raw, Options{})
	if rep.OK() {
		t.Fatalf("expected a problem for handout_klingon")
	}
	last := rep.Handouts[len(rep.Handouts)-1]
	if last.Resolved || last.Listed || last.Token != "klingon" {
		t.Fatalf("klingon handout=%+v", last)
	}
	if len(rep.Problems) != 1 || !strings.Contains(rep.Problems[0], `unknown language "klingon"`) {
		t.Fatalf("problems=%v", rep.Problems)
	}
	if rep.Dimensions["courses"] != 6 {
		t.Fatalf("dimensions should still be computed: %v", rep.Dimensions)
	}
}

func TestInspect_DanglingPrerequisite(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	idx := raw.Index(transformer.ColPrerequisite)
	raw.Rows[4].V[idx] = "Knitting 101"

	rep := Inspect(raw, Options{})
	if len(rep.Problems) != 1 {
		t.Fatalf("problems=%v, want 1", rep.Problems)
	}
	if !strings.Contains(rep.Problems[0], `"Open Lab"`) || !strings.Contains(rep.Problems[0], `"Knitting 101"`) {
		t.Fatalf("problem=%q", rep.Problems[0])
	}
}

func TestInspect_SelfPrerequisite(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	idx := raw.Index(transformer.ColPrerequisite)
	raw.Rows[4].V[idx] = "open lab"

	rep := Inspect(raw, Options{})
	if len(rep.Problems) != 1 || rep.Problems[0] != `course "Open Lab" lists itself as its prerequisite` {
		t.Fatalf("problems=%v", rep.Problems)
	}
}

func TestInspect_PreprocessFailureStopsEarly(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	idx := raw.Index(transformer.ColDescription)
	raw.Rows[2].V[idx] = nil

	rep := Inspect(raw, Options{})
	if len(rep.Problems) != 1 || !strings.Contains(rep.Problems[0], "description includes null values: 1") {
		t.Fatalf("problems=%v", rep.Problems)
	}
	if rep.Dimensions != nil {
		t.Fatalf("dimensions=%v, want none after a preprocess failure", rep.Dimensions)
	}
	if len(rep.Columns) != len(raw.Columns) {
		t.Fatalf("columns=%d, want %d", len(rep.Columns), len(raw.Columns))
	}
}

func TestInspect_HandoutColumnsSharingALanguage(t *testing.T) {
	t.Parallel()

	raw := fixture(t)
	raw.Columns = append(raw.Columns, "handout_english")
	for _, r := range raw.Rows {
		r.V = append(r.V, "https://example.com/dup")
	}

	rep := Inspect(raw, Options{})
	if len(rep.Problems) != 1 || !strings.Contains(rep.Problems[0], `handout, handout_english all carry language "english"`) {
		t.Fatalf("problems=%v", rep.Problems)
	}
}

func TestInspect_UnlistedLanguage(t *testing.T) {
	t.Parallel()

	rep := Inspect(fixture(t), Options{HandoutLanguages: []string{"english", "french"}})
	if !rep.OK() {
		t.Fatalf("problems=%v", rep.Problems)
	}
	listed := 0
	for _, h := range rep.Handouts {
		if h.Listed {
			listed++
		}
	}
	if listed != 2 {
		t.Fatalf("listed=%d, want 2", listed)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	out := Format(Inspect(fixture(t), Options{}))
	for _, want := range []string{"rows=6", "handout_russian", "series=14", "no problems found"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	bad := Format(Report{Problems: []string{"a", "b"}})
	if !strings.Contains(bad, "2 problem(s):\n  - a\n  - b\n") {
		t.Fatalf("problem listing:\n%s", bad)
	}
}
