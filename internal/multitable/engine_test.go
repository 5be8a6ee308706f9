package multitable

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"catalog/internal/metrics"
	csvparser "catalog/internal/parser/csv"
	"catalog/internal/storage"
	"catalog/internal/transformer"
)

func loadFixture(t *testing.T) *transformer.Table {
	t.Helper()
	tbl, err := csvparser.ReadFile(context.Background(), "testdata/courses.csv", csvparser.Options{})
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return tbl
}

var wantCounts = map[string]int64{
	storage.TableLevels:              4,
	storage.TableFormats:             3,
	storage.TableSeries:              14,
	storage.TableLanguages:           6,
	storage.TableCourses:             6,
	storage.TablePrerequisites:       3,
	storage.TableHandouts:            7,
	storage.TableAdditionalMaterials: 1,
	storage.TableCourseSeries:        16,
}

func i64(vs ...int64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestEngine_Run_SeedsCatalog(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	rec := newRecorder()
	core, logs := observer.New(zapcore.InfoLevel)

	e := &Engine{Repo: repo, Log: zap.New(core), Metrics: rec, Options: DefaultOptions()}
	rep, err := e.Run(context.Background(), loadFixture(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Stage != StageDone {
		t.Fatalf("stage=%s, want %s", rep.Stage, StageDone)
	}
	if !reflect.DeepEqual(rep.Counts, wantCounts) {
		t.Fatalf("counts=%v\nwant %v", rep.Counts, wantCounts)
	}
	if len(rep.IgnoredHandoutColumns) != 0 {
		t.Fatalf("ignored=%v", rep.IgnoredHandoutColumns)
	}
	if rep.SourceDigest != transformer.Digest(loadFixture(t)) {
		t.Fatalf("source digest=%q", rep.SourceDigest)
	}
	if repo.commits != 1 || repo.rollbacks != 0 {
		t.Fatalf("commits=%d rollbacks=%d", repo.commits, repo.rollbacks)
	}
	for table, n := range wantCounts {
		if got := repo.count(table); int64(got) != n {
			t.Fatalf("%s rows=%d, want %d", table, got, n)
		}
	}

	wantCourses := [][]any{
		{"Excel For Beginners", int64(2), int64(1)},
		{"Intermediate Python Functions", int64(1), int64(1)},
		{"Getting Started With Canva", int64(2), int64(1)},
		{"Photoshop Basics", int64(3), int64(1)},
		{"Open Lab", int64(4), int64(2)},
		{"Procreate Workshop: Create A Brush", int64(3), int64(3)},
	}
	if got := repo.pairs(storage.TableCourses, "course_name", "level_id", "format_id"); !reflect.DeepEqual(got, wantCourses) {
		t.Fatalf("courses=%v\nwant %v", got, wantCourses)
	}

	wantPrereqs := [][]any{i64(2, 1), i64(3, 4), i64(6, 3)}
	if got := repo.pairs(storage.TablePrerequisites, "course_id", "prereq_id"); !reflect.DeepEqual(got, wantPrereqs) {
		t.Fatalf("prerequisites=%v, want %v", got, wantPrereqs)
	}

	wantSeries := [][]any{
		i64(1, 8), i64(1, 9), i64(1, 7),
		i64(2, 13), i64(2, 12),
		i64(3, 4), i64(3, 2), i64(3, 6),
		i64(4, 10), i64(4, 1), i64(4, 6),
		i64(5, 14),
		i64(6, 5), i64(6, 3), i64(6, 6), i64(6, 11),
	}
	if got := repo.pairs(storage.TableCourseSeries, "course_id", "series_id"); !reflect.DeepEqual(got, wantSeries) {
		t.Fatalf("course_series=%v\nwant %v", got, wantSeries)
	}

	wantLangs := [][]any{{"en"}, {"zh"}, {"es"}, {"bn"}, {"fr"}, {"ru"}}
	if got := repo.pairs(storage.TableLanguages, "language_code"); !reflect.DeepEqual(got, wantLangs) {
		t.Fatalf("languages=%v, want %v", got, wantLangs)
	}

	wantHandouts := [][]any{
		{"https://example.com/excel-1", "en", int64(1)},
		{"https://example.com/photoshop-basics", "en", int64(4)},
		{"https://example.com/excel-1_zh", "zh", int64(1)},
		{"https://example.com/excel-1_es", "es", int64(1)},
		{"https://example.com/excel-1_bn", "bn", int64(1)},
		{"https://example.com/photoshop-basics_fr", "fr", int64(4)},
		{"https://example.com/photoshop-basics_ru", "ru", int64(4)},
	}
	if got := repo.pairs(storage.TableHandouts, "url", "language_code", "course_id"); !reflect.DeepEqual(got, wantHandouts) {
		t.Fatalf("handouts=%v\nwant %v", got, wantHandouts)
	}

	for _, step := range []string{"prepare", "create_tables", "check_empty", "seed_dimensions", "seed_facts", "audit", "commit"} {
		if got := rec.get(metrics.SeedStepTotal, step, metrics.StatusOK, ""); got != 1 {
			t.Fatalf("seed_step_total{step=%s,status=ok}=%v, want 1", step, got)
		}
		if logs.FilterMessage("stage ok").FilterField(zap.String("stage", step)).Len() != 1 {
			t.Fatalf("missing stage ok log for %s", step)
		}
	}
	if got := rec.get(metrics.SeedRowsTotal, "", "", storage.TableCourseSeries); got != 16 {
		t.Fatalf("seed_rows_total{kind=course_series}=%v, want 16", got)
	}
}

// The single-course example: two series edges, no prerequisite, and one
// handout each in english and french.
func TestEngine_Run_SingleCourse(t *testing.T) {
	t.Parallel()

	raw := transformer.NewTable(
		[]string{"class_title", "description", "level", "format", "series", "prerequisite", "handout", "handout_french"},
		[]string{"Excel for Beginners", "Intro", "Beginner", "class", "microsoft office, microsoft excel", "", "https://x/1", "https://x/1_fr"},
	)
	repo := newFakeRepo()
	e := &Engine{Repo: repo, Options: DefaultOptions()}
	if _, err := e.Run(context.Background(), raw); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := repo.pairs(storage.TableCourses, "course_name", "id"); !reflect.DeepEqual(got, [][]any{{"Excel For Beginners", int64(1)}}) {
		t.Fatalf("courses=%v", got)
	}
	if got := repo.count(storage.TableCourseSeries); got != 2 {
		t.Fatalf("course_series rows=%d, want 2", got)
	}
	if got := repo.count(storage.TablePrerequisites); got != 0 {
		t.Fatalf("prerequisite rows=%d, want 0", got)
	}
	want := [][]any{{"en", int64(1)}, {"fr", int64(1)}}
	if got := repo.pairs(storage.TableHandouts, "language_code", "course_id"); !reflect.DeepEqual(got, want) {
		t.Fatalf("handouts=%v, want %v", got, want)
	}
}

func TestEngine_Run_FailsBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   *transformer.Table
		check func(t *testing.T, err error)
	}{
		{
			name: "klingon_handout",
			raw: transformer.NewTable(
				[]string{"class_title", "description", "level", "format", "series", "handout", "handout_klingon"},
				[]string{"A", "d", "Beginner", "class", "s", "u", "u2"},
			),
			check: func(t *testing.T, err error) {
				var lre *transformer.LanguageResolutionError
				if !errors.As(err, &lre) {
					t.Fatalf("err=%v, want *LanguageResolutionError", err)
				}
			},
		},
		{
			name: "two_english_handout_columns",
			raw: transformer.NewTable(
				[]string{"class_title", "description", "level", "format", "series", "handout", "handout_english", "handout_french"},
				[]string{"A", "d", "Beginner", "class", "s", "https://x/1", "https://x/1b", "https://x/1_fr"},
			),
			check: func(t *testing.T, err error) {
				var hce *transformer.HandoutColumnConflictError
				if !errors.As(err, &hce) || hce.Token != "english" {
					t.Fatalf("err=%v, want *HandoutColumnConflictError for english", err)
				}
			},
		},
		{
			name: "missing_description",
			raw: transformer.NewTable(
				[]string{"class_title", "description", "level", "format", "series"},
				[]string{"A", "", "Beginner", "class", "s"},
			),
			check: func(t *testing.T, err error) {
				var die *transformer.DataIntegrityError
				if !errors.As(err, &die) {
					t.Fatalf("err=%v, want *DataIntegrityError", err)
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeRepo()
			rec := newRecorder()
			e := &Engine{Repo: repo, Metrics: rec, Options: Options{DropAll: true, StrictAudit: true}}
			rep, err := e.Run(context.Background(), tc.raw)
			tc.check(t, err)

			if repo.ensureCalls != 0 || len(repo.dropped) != 0 || repo.commits != 0 {
				t.Fatalf("destination touched: ensure=%d dropped=%v commits=%d", repo.ensureCalls, repo.dropped, repo.commits)
			}
			if rep.Stage != StageStart {
				t.Fatalf("stage=%s, want %s", rep.Stage, StageStart)
			}
			if got := rec.get(metrics.SeedStepTotal, "prepare", metrics.StatusError, ""); got != 1 {
				t.Fatalf("prepare error count=%v, want 1", got)
			}
		})
	}
}

func TestEngine_Run_DestinationNotEmpty(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	if err := repo.EnsureTables(context.Background(), storage.CatalogTables()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	repo.seed(storage.TableLevels, map[string]any{"level_name": "beginner"})

	e := &Engine{Repo: repo, Options: DefaultOptions()}
	rep, err := e.Run(context.Background(), loadFixture(t))

	var dne *DestinationNotEmptyError
	if !errors.As(err, &dne) {
		t.Fatalf("err=%v, want *DestinationNotEmptyError", err)
	}
	if dne.Table != storage.TableLevels || dne.Rows != 1 {
		t.Fatalf("got %+v", dne)
	}
	if rep.Stage != StageTablesCreated {
		t.Fatalf("stage=%s", rep.Stage)
	}
	if repo.rollbacks != 1 || repo.count(storage.TableLevels) != 1 {
		t.Fatalf("rollbacks=%d levels=%d", repo.rollbacks, repo.count(storage.TableLevels))
	}
}

func TestEngine_Run_DropAllReseeds(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	e := &Engine{Repo: repo, Options: DefaultOptions()}
	if _, err := e.Run(context.Background(), loadFixture(t)); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	e.Options.DropAll = true
	if _, err := e.Run(context.Background(), loadFixture(t)); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// Children are dropped before parents.
	if len(repo.dropped) != 9 || repo.dropped[0] != storage.TableCourseSeries || repo.dropped[8] != storage.TableLevels {
		t.Fatalf("dropped=%v", repo.dropped)
	}
	if got := repo.count(storage.TableCourses); got != 6 {
		t.Fatalf("courses=%d, want 6", got)
	}
}

func TestEngine_Run_ReferentialErrorRollsBack(t *testing.T) {
	t.Parallel()

	raw := loadFixture(t)
	idx := raw.Index("prerequisite")
	raw.Rows[1].V[idx] = "Advanced Necromancy"

	repo := newFakeRepo()
	e := &Engine{Repo: repo, Options: DefaultOptions()}
	rep, err := e.Run(context.Background(), raw)

	var rie *ReferentialIntegrityError
	if !errors.As(err, &rie) {
		t.Fatalf("err=%v, want *ReferentialIntegrityError", err)
	}
	if rep.Stage != StageDimensionsSeeded {
		t.Fatalf("stage=%s", rep.Stage)
	}
	if repo.rollbacks != 1 || repo.commits != 0 {
		t.Fatalf("commits=%d rollbacks=%d", repo.commits, repo.rollbacks)
	}
	for _, table := range []string{storage.TableLevels, storage.TableCourses} {
		if n := repo.count(table); n != 0 {
			t.Fatalf("%s has %d committed rows after rollback", table, n)
		}
	}
}

func TestEngine_Run_Audit(t *testing.T) {
	t.Parallel()

	t.Run("strict_rolls_back", func(t *testing.T) {
		t.Parallel()

		repo := newFakeRepo()
		repo.shortWrite[storage.TableHandouts] = true
		e := &Engine{Repo: repo, Options: DefaultOptions()}
		rep, err := e.Run(context.Background(), loadFixture(t))

		var ae *AuditError
		if !errors.As(err, &ae) {
			t.Fatalf("err=%v, want *AuditError", err)
		}
		want := []RowCountMismatch{{Table: storage.TableHandouts, Expected: 7, Actual: 6}}
		if !reflect.DeepEqual(ae.Mismatches, want) {
			t.Fatalf("mismatches=%+v, want %+v", ae.Mismatches, want)
		}
		var m RowCountMismatch
		if !errors.As(err, &m) || m.Table != storage.TableHandouts {
			t.Fatalf("errors.As RowCountMismatch: %+v", m)
		}
		if rep.Stage != StageFactsSeeded || repo.commits != 0 || repo.rollbacks != 1 {
			t.Fatalf("stage=%s commits=%d rollbacks=%d", rep.Stage, repo.commits, repo.rollbacks)
		}
	})

	t.Run("lenient_logs_and_commits", func(t *testing.T) {
		t.Parallel()

		repo := newFakeRepo()
		repo.shortWrite[storage.TableAdditionalMaterials] = true
		core, logs := observer.New(zapcore.ErrorLevel)

		opt := DefaultOptions()
		opt.StrictAudit = false
		e := &Engine{Repo: repo, Log: zap.New(core), Options: opt}
		rep, err := e.Run(context.Background(), loadFixture(t))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rep.Stage != StageDone || repo.commits != 1 {
			t.Fatalf("stage=%s commits=%d", rep.Stage, repo.commits)
		}
		if logs.FilterMessage("row count audit failed; continuing").Len() != 1 {
			t.Fatalf("audit failure not logged: %v", logs.All())
		}
	})
}

func TestEngine_Run_ReportsUnlistedHandouts(t *testing.T) {
	t.Parallel()

	raw := loadFixture(t)
	opt := DefaultOptions()
	opt.HandoutLanguages = []string{"english", "french"}

	repo := newFakeRepo()
	e := &Engine{Repo: repo, Options: opt}
	rep, err := e.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"handout_chinese", "handout_spanish", "handout_bengali", "handout_russian"}
	if !reflect.DeepEqual(rep.IgnoredHandoutColumns, want) {
		t.Fatalf("ignored=%v, want %v", rep.IgnoredHandoutColumns, want)
	}
	// Languages are still seeded from every handout column.
	if rep.Counts[storage.TableLanguages] != 6 || rep.Counts[storage.TableHandouts] != 3 {
		t.Fatalf("counts=%v", rep.Counts)
	}
}

func TestEngine_Run_InsertErrorRollsBack(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	repo := newFakeRepo()
	repo.insertErr[storage.TableSeries] = boom

	e := &Engine{Repo: repo, Options: DefaultOptions()}
	_, err := e.Run(context.Background(), loadFixture(t))
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapping %v", err, boom)
	}
	if repo.rollbacks != 1 {
		t.Fatalf("rollbacks=%d, want 1", repo.rollbacks)
	}
}

func TestEngine_Run_RequiresRepo(t *testing.T) {
	t.Parallel()

	if _, err := (&Engine{}).Run(context.Background(), loadFixture(t)); err == nil {
		t.Fatalf("expected error without Repo")
	}
}
