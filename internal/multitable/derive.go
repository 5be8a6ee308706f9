package multitable

import (
	"context"
	"fmt"

	"catalog/internal/storage"
	"catalog/internal/transformer"
)

// DefaultHandoutLanguages is the order in which handout columns are loaded.
var DefaultHandoutLanguages = []string{"english", "chinese", "spanish", "bengali", "french", "russian"}

// CourseRow is one row of courses.
type CourseRow struct {
	Name        string
	Description string
	LevelID     int64
	FormatID    int64
}

func (r CourseRow) values() []any { return []any{r.Name, r.Description, r.LevelID, r.FormatID} }

// PrerequisiteRow links a course to the course it requires.
type PrerequisiteRow struct {
	CourseID int64
	PrereqID int64
}

func (r PrerequisiteRow) values() []any { return []any{r.CourseID, r.PrereqID} }

// HandoutRow is one handout URL for a course in one language.
type HandoutRow struct {
	URL          string
	LanguageCode string
	CourseID     int64
}

func (r HandoutRow) values() []any { return []any{r.URL, r.LanguageCode, r.CourseID} }

// MaterialRow is a course's additional materials URL.
type MaterialRow struct {
	URL      string
	CourseID int64
}

func (r MaterialRow) values() []any { return []any{r.URL, r.CourseID} }

// CourseSeriesRow places a course in one series.
type CourseSeriesRow struct {
	CourseID int64
	SeriesID int64
}

func (r CourseSeriesRow) values() []any { return []any{r.CourseID, r.SeriesID} }

type valuer interface{ values() []any }

// toBatch lays typed rows out in the column order of the catalog table.
func toBatch[R valuer](table string, rows []R) storage.Batch {
	spec, _ := storage.CatalogTable(table)
	b := storage.Batch{Table: table, Columns: spec.ColumnNames(), Rows: make([][]any, len(rows))}
	for i, r := range rows {
		b.Rows[i] = r.values()
	}
	return b
}

func selectIDs(ctx context.Context, lk Lookup, table, keyColumn string) (map[string]int64, error) {
	m, err := lk.SelectAllKeyValue(ctx, table, keyColumn, "id")
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", table, err)
	}
	return foldKeys(m), nil
}

// texts returns column col of every row; missing cells are "".
func texts(t *transformer.Table, col string) []string {
	idx := t.Index(col)
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i], _ = t.Text(r, idx)
	}
	return out
}

// DeriveCourses resolves each course's level and format to their ids.
func DeriveCourses(ctx context.Context, lk Lookup, t *transformer.Table) ([]CourseRow, error) {
	levels, err := selectIDs(ctx, lk, storage.TableLevels, "level_name")
	if err != nil {
		return nil, err
	}
	formats, err := selectIDs(ctx, lk, storage.TableFormats, "format_name")
	if err != nil {
		return nil, err
	}

	names := texts(t, transformer.ColCourseName)
	descs := texts(t, transformer.ColDescription)
	lv := texts(t, transformer.ColLevel)
	fm := texts(t, transformer.ColFormat)

	levelIDs, levelOK := resolve(lv, levels)
	if err := reconcile(storage.TableCourses, "level_id", lv, levelIDs, levelOK); err != nil {
		return nil, err
	}
	formatIDs, formatOK := resolve(fm, formats)
	if err := reconcile(storage.TableCourses, "format_id", fm, formatIDs, formatOK); err != nil {
		return nil, err
	}

	out := make([]CourseRow, len(names))
	for i := range names {
		out[i] = CourseRow{Name: names[i], Description: descs[i], LevelID: levelIDs[i], FormatID: formatIDs[i]}
	}
	return out, nil
}

// DerivePrerequisites links every course that names a prerequisite to that
// course. Both ends resolve against the stored courses; a course may not
// require itself.
func DerivePrerequisites(ctx context.Context, lk Lookup, t *transformer.Table) ([]PrerequisiteRow, error) {
	nameIdx := t.Index(transformer.ColCourseName)
	preIdx := t.Index(transformer.ColPrerequisite)
	if preIdx < 0 {
		return []PrerequisiteRow{}, nil
	}

	var names, prereqs []string
	for _, r := range t.Rows {
		p, ok := t.Text(r, preIdx)
		if !ok {
			continue
		}
		n, _ := t.Text(r, nameIdx)
		names = append(names, n)
		prereqs = append(prereqs, p)
	}
	if len(names) == 0 {
		return []PrerequisiteRow{}, nil
	}

	courses, err := selectIDs(ctx, lk, storage.TableCourses, "course_name")
	if err != nil {
		return nil, err
	}

	courseIDs, courseOK := resolve(names, courses)
	if err := reconcile(storage.TablePrerequisites, "course_id", names, courseIDs, courseOK); err != nil {
		return nil, err
	}
	prereqIDs, prereqOK := resolve(prereqs, courses)
	if err := reconcile(storage.TablePrerequisites, "prereq_id", prereqs, prereqIDs, prereqOK); err != nil {
		return nil, err
	}

	out := make([]PrerequisiteRow, len(names))
	for i := range names {
		if courseIDs[i] == prereqIDs[i] {
			return nil, &SelfPrerequisiteError{Course: names[i]}
		}
		out[i] = PrerequisiteRow{CourseID: courseIDs[i], PrereqID: prereqIDs[i]}
	}
	return out, nil
}

// handoutColumnsByToken maps each language token to its handout column.
// Preprocess has already rejected tokens claimed by two columns.
func handoutColumnsByToken(t *transformer.Table) map[string]string {
	out := make(map[string]string)
	for _, hc := range transformer.HandoutColumns(t) {
		if _, ok := out[hc.Token]; !ok {
			out[hc.Token] = hc.Column
		}
	}
	return out
}

// UnlistedHandoutColumns returns the handout columns that DeriveHandouts
// ignores for the given language list.
func UnlistedHandoutColumns(t *transformer.Table, languages []string) []string {
	listed := make(map[string]bool, len(languages))
	for _, l := range languages {
		listed[transformer.Normalize(l)] = true
	}
	var out []string
	for _, hc := range transformer.HandoutColumns(t) {
		if !listed[hc.Token] {
			out = append(out, hc.Column)
		}
	}
	return out
}

// DeriveHandouts emits one row per present handout URL, language by language
// in the given order. Languages without a column in t are skipped.
func DeriveHandouts(ctx context.Context, lk Lookup, t *transformer.Table, languages []string) ([]HandoutRow, error) {
	byToken := handoutColumnsByToken(t)
	nameIdx := t.Index(transformer.ColCourseName)

	var names, langs, urls []string
	for _, lang := range languages {
		lang = transformer.Normalize(lang)
		col, ok := byToken[lang]
		if !ok {
			continue
		}
		idx := t.Index(col)
		for _, r := range t.Rows {
			u, ok := t.Text(r, idx)
			if !ok {
				continue
			}
			n, _ := t.Text(r, nameIdx)
			names = append(names, n)
			langs = append(langs, lang)
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return []HandoutRow{}, nil
	}

	codeMap, err := lk.SelectAllKeyText(ctx, storage.TableLanguages, "language_name", "language_code")
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", storage.TableLanguages, err)
	}
	codes, codeOK := resolve(langs, foldKeys(codeMap))
	if err := reconcile(storage.TableHandouts, "language_code", langs, codes, codeOK); err != nil {
		return nil, err
	}

	courses, err := selectIDs(ctx, lk, storage.TableCourses, "course_name")
	if err != nil {
		return nil, err
	}
	courseIDs, courseOK := resolve(names, courses)
	if err := reconcile(storage.TableHandouts, "course_id", names, courseIDs, courseOK); err != nil {
		return nil, err
	}

	out := make([]HandoutRow, len(urls))
	for i := range urls {
		out[i] = HandoutRow{URL: urls[i], LanguageCode: codes[i], CourseID: courseIDs[i]}
	}
	return out, nil
}

// DeriveAdditionalMaterials emits one row per course with a materials URL.
func DeriveAdditionalMaterials(ctx context.Context, lk Lookup, t *transformer.Table) ([]MaterialRow, error) {
	nameIdx := t.Index(transformer.ColCourseName)
	urlIdx := t.Index(transformer.ColAdditionalMaterials)
	if urlIdx < 0 {
		return []MaterialRow{}, nil
	}

	var names, urls []string
	for _, r := range t.Rows {
		u, ok := t.Text(r, urlIdx)
		if !ok {
			continue
		}
		n, _ := t.Text(r, nameIdx)
		names = append(names, n)
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return []MaterialRow{}, nil
	}

	courses, err := selectIDs(ctx, lk, storage.TableCourses, "course_name")
	if err != nil {
		return nil, err
	}
	courseIDs, ok := resolve(names, courses)
	if err := reconcile(storage.TableAdditionalMaterials, "course_id", names, courseIDs, ok); err != nil {
		return nil, err
	}

	out := make([]MaterialRow, len(urls))
	for i := range urls {
		out[i] = MaterialRow{URL: urls[i], CourseID: courseIDs[i]}
	}
	return out, nil
}

// DeriveCourseSeries explodes each course's series cell and links the course
// to every distinct series in it, in cell order.
func DeriveCourseSeries(ctx context.Context, lk Lookup, t *transformer.Table) ([]CourseSeriesRow, error) {
	nameIdx := t.Index(transformer.ColCourseName)
	seriesIdx := t.Index(transformer.ColSeries)

	var names, series []string
	for _, r := range t.Rows {
		cell, ok := t.Text(r, seriesIdx)
		if !ok {
			continue
		}
		n, _ := t.Text(r, nameIdx)
		seen := make(map[string]bool)
		for _, s := range transformer.SplitSeries(cell) {
			if seen[s] {
				continue
			}
			seen[s] = true
			names = append(names, n)
			series = append(series, s)
		}
	}
	if len(names) == 0 {
		return []CourseSeriesRow{}, nil
	}

	courses, err := selectIDs(ctx, lk, storage.TableCourses, "course_name")
	if err != nil {
		return nil, err
	}
	seriesMap, err := selectIDs(ctx, lk, storage.TableSeries, "series_name")
	if err != nil {
		return nil, err
	}

	courseIDs, courseOK := resolve(names, courses)
	if err := reconcile(storage.TableCourseSeries, "course_id", names, courseIDs, courseOK); err != nil {
		return nil, err
	}
	seriesIDs, seriesOK := resolve(series, seriesMap)
	if err := reconcile(storage.TableCourseSeries, "series_id", series, seriesIDs, seriesOK); err != nil {
		return nil, err
	}

	out := make([]CourseSeriesRow, len(names))
	for i := range names {
		out[i] = CourseSeriesRow{CourseID: courseIDs[i], SeriesID: seriesIDs[i]}
	}
	return out, nil
}
