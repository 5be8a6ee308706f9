// Package multitable seeds the normalized catalog tables from one cleaned
// course export.
package multitable

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"catalog/internal/metrics"
	"catalog/internal/storage"
	"catalog/internal/transformer"
)

// Stage is a point in the seeding state machine.
type Stage string

const (
	StageStart              Stage = "start"
	StageTablesCreated      Stage = "tables-created"
	StageDimensionsSeeded   Stage = "dimensions-seeded"
	StageFactsSeeded        Stage = "facts-derived-and-seeded"
	StageRowCountsValidated Stage = "row-counts-validated"
	StageDone               Stage = "done"
)

// Options tunes a run. Use DefaultOptions as the base; the zero value has a
// lenient audit.
type Options struct {
	// HandoutLanguages is the ordered language list for handouts. Empty
	// means DefaultHandoutLanguages.
	HandoutLanguages []string

	// StrictAudit makes a row count mismatch fatal. When false, mismatches
	// are logged and the run commits anyway.
	StrictAudit bool

	// DropAll drops every catalog table before creating them.
	DropAll bool

	StripHTML bool

	// Resolver maps handout tokens to language codes. Nil uses the defaults.
	Resolver *transformer.LanguageResolver
}

func DefaultOptions() Options {
	return Options{HandoutLanguages: DefaultHandoutLanguages, StrictAudit: true}
}

// Report summarizes a run.
type Report struct {
	Stage                 Stage
	Counts                map[string]int64
	IgnoredHandoutColumns []string
	SourceDigest          string // transformer.Digest of the raw export
	Duration              time.Duration
}

// Engine loads one raw table into the catalog schema inside a single
// destination session.
type Engine struct {
	Repo    storage.Repository
	Log     *zap.Logger
	Metrics metrics.Backend // nil discards
	Options Options
}

// seedPlan is everything derivable without the destination.
type seedPlan struct {
	clean *transformer.Table
	dims  []storage.Batch
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) languages() []string {
	if len(e.Options.HandoutLanguages) == 0 {
		return DefaultHandoutLanguages
	}
	return e.Options.HandoutLanguages
}

// step runs fn as one named stage, logging and recording its outcome.
func (e *Engine) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := durMS(start)
	metrics.RecordStep(e.Metrics, name, err, d)
	if err != nil {
		e.logger().Error("stage failed", zap.String("stage", name), zap.Duration("duration", d), zap.Error(err))
		return err
	}
	e.logger().Info("stage ok", zap.String("stage", name), zap.Duration("duration", d))
	return nil
}

// Run seeds the catalog from raw.
//
// Cleaning and dimension extraction (including language resolution) finish
// before the first write, so a bad export leaves the destination untouched.
// All row writes share one session: any failure rolls the whole seed back.
func (e *Engine) Run(ctx context.Context, raw *transformer.Table) (rep Report, err error) {
	start := time.Now()
	rep.Stage = StageStart
	defer func() { rep.Duration = durMS(start) }()

	if e.Repo == nil {
		return rep, errors.New("engine: Repo is required")
	}
	if raw == nil {
		return rep, errors.New("engine: raw table is nil")
	}
	rep.SourceDigest = transformer.Digest(raw)
	log := e.logger()
	tables := storage.CatalogTables()

	var plan seedPlan
	if err := e.step("prepare", func() error {
		var perr error
		plan, perr = e.prepare(raw)
		return perr
	}); err != nil {
		return rep, err
	}

	rep.IgnoredHandoutColumns = UnlistedHandoutColumns(plan.clean, e.languages())
	if len(rep.IgnoredHandoutColumns) > 0 {
		log.Warn("handout columns ignored", zap.Strings("columns", rep.IgnoredHandoutColumns))
	}

	if e.Options.DropAll {
		if err := e.step("drop_tables", func() error {
			return e.Repo.DropTables(ctx, storage.Reversed(tables))
		}); err != nil {
			return rep, err
		}
	}

	if err := e.step("create_tables", func() error {
		return e.Repo.EnsureTables(ctx, tables)
	}); err != nil {
		return rep, err
	}
	rep.Stage = StageTablesCreated

	tx, err := e.Repo.Begin(ctx)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = e.step("check_empty", func() error { return checkEmpty(ctx, tx, tables) }); err != nil {
		return rep, err
	}

	copyer := NewTableCopyer(tx, log, e.Metrics)
	defer func() { rep.Counts = copyer.Expected() }()

	if err = e.step("seed_dimensions", func() error {
		for _, b := range plan.dims {
			if err := copyer.Copy(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return rep, err
	}
	rep.Stage = StageDimensionsSeeded

	if err = e.step("seed_facts", func() error { return e.seedFacts(ctx, tx, copyer, plan.clean) }); err != nil {
		return rep, err
	}
	rep.Stage = StageFactsSeeded

	if err = e.step("audit", func() error { return e.audit(ctx, copyer) }); err != nil {
		return rep, err
	}
	rep.Stage = StageRowCountsValidated

	if err = e.step("commit", func() error { return tx.Commit(ctx) }); err != nil {
		return rep, err
	}
	rep.Stage = StageDone
	return rep, nil
}

// prepare cleans raw and builds the four dimension batches.
func (e *Engine) prepare(raw *transformer.Table) (seedPlan, error) {
	clean, err := transformer.Preprocess(raw, transformer.PreprocessOptions{StripHTML: e.Options.StripHTML})
	if err != nil {
		return seedPlan{}, err
	}
	langs, err := transformer.ExtractLanguages(clean, e.Options.Resolver)
	if err != nil {
		return seedPlan{}, err
	}

	dims := make([]storage.Batch, 0, 4)
	for _, d := range []transformer.Dimension{
		transformer.ExtractLevels(clean),
		transformer.ExtractFormats(clean),
		transformer.ExtractSeries(clean),
	} {
		b := storage.Batch{Table: d.Table, Columns: []string{d.Field}, Rows: make([][]any, len(d.Values))}
		for i, v := range d.Values {
			b.Rows[i] = []any{v}
		}
		dims = append(dims, b)
	}

	lb := storage.Batch{
		Table:   storage.TableLanguages,
		Columns: []string{"language_code", "language_name"},
		Rows:    make([][]any, len(langs)),
	}
	for i, l := range langs {
		lb.Rows[i] = []any{l.Code, l.Name}
	}
	dims = append(dims, lb)

	return seedPlan{clean: clean, dims: dims}, nil
}

// seedFacts derives and copies each fact table in dependency order. Every
// deriver reads its keys back through tx, so it sees rows copied before it.
func (e *Engine) seedFacts(ctx context.Context, tx storage.Tx, c *TableCopyer, t *transformer.Table) error {
	courses, err := DeriveCourses(ctx, tx, t)
	if err != nil {
		return err
	}
	if err := c.Copy(ctx, toBatch(storage.TableCourses, courses)); err != nil {
		return err
	}

	prereqs, err := DerivePrerequisites(ctx, tx, t)
	if err != nil {
		return err
	}
	if err := c.Copy(ctx, toBatch(storage.TablePrerequisites, prereqs)); err != nil {
		return err
	}

	handouts, err := DeriveHandouts(ctx, tx, t, e.languages())
	if err != nil {
		return err
	}
	if err := c.Copy(ctx, toBatch(storage.TableHandouts, handouts)); err != nil {
		return err
	}

	materials, err := DeriveAdditionalMaterials(ctx, tx, t)
	if err != nil {
		return err
	}
	if err := c.Copy(ctx, toBatch(storage.TableAdditionalMaterials, materials)); err != nil {
		return err
	}

	series, err := DeriveCourseSeries(ctx, tx, t)
	if err != nil {
		return err
	}
	return c.Copy(ctx, toBatch(storage.TableCourseSeries, series))
}

func (e *Engine) audit(ctx context.Context, c *TableCopyer) error {
	mismatches, err := c.Audit(ctx)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		return nil
	}
	aerr := &AuditError{Mismatches: mismatches}
	if e.Options.StrictAudit {
		return aerr
	}
	e.logger().Error("row count audit failed; continuing", zap.Error(aerr))
	return nil
}

// checkEmpty fails when any destination table already holds rows.
func checkEmpty(ctx context.Context, tx storage.Tx, tables []storage.TableSpec) error {
	for _, t := range tables {
		n, err := tx.CountRows(ctx, t.Name)
		if err != nil {
			return err
		}
		if n > 0 {
			return &DestinationNotEmptyError{Table: t.Name, Rows: n}
		}
	}
	return nil
}
