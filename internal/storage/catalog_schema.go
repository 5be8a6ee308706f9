package storage

// Destination table names.
const (
	TableLevels              = "levels"
	TableFormats             = "formats"
	TableSeries              = "series"
	TableLanguages           = "languages"
	TableCourses             = "courses"
	TablePrerequisites       = "prerequisites"
	TableHandouts            = "handouts"
	TableAdditionalMaterials = "additional_materials"
	TableCourseSeries        = "course_series"
)

func serialID() *PrimaryKeySpec { return &PrimaryKeySpec{Name: "id", Type: "serial"} }

func nameDimension(table, column string) TableSpec {
	return TableSpec{
		Name:       table,
		PrimaryKey: serialID(),
		Columns: []ColumnSpec{
			{Name: column, Type: "varchar(255)"},
		},
		Constraints: []ConstraintSpec{
			{Kind: ConstraintUnique, Columns: []string{column}},
		},
	}
}

// CatalogTables returns the nine catalog tables in dependency order
// (every table appears after the tables it references).
func CatalogTables() []TableSpec {
	return []TableSpec{
		nameDimension(TableLevels, "level_name"),
		nameDimension(TableFormats, "format_name"),
		nameDimension(TableSeries, "series_name"),
		{
			Name: TableLanguages,
			Columns: []ColumnSpec{
				{Name: "language_code", Type: "char(2)"},
				{Name: "language_name", Type: "varchar(255)"},
			},
			Constraints: []ConstraintSpec{
				{Kind: ConstraintPrimaryKey, Columns: []string{"language_code"}},
				{Kind: ConstraintUnique, Columns: []string{"language_name"}},
			},
		},
		{
			Name:       TableCourses,
			PrimaryKey: serialID(),
			Columns: []ColumnSpec{
				{Name: "course_name", Type: "varchar(255)"},
				{Name: "description", Type: "text"},
				{Name: "level_id", Type: "integer", References: "levels(id)"},
				{Name: "format_id", Type: "integer", References: "formats(id)"},
			},
			Constraints: []ConstraintSpec{
				{Kind: ConstraintUnique, Columns: []string{"course_name"}},
			},
		},
		{
			Name: TablePrerequisites,
			Columns: []ColumnSpec{
				{Name: "course_id", Type: "integer", References: "courses(id)"},
				{Name: "prereq_id", Type: "integer", References: "courses(id)"},
			},
			Constraints: []ConstraintSpec{
				{Kind: ConstraintPrimaryKey, Columns: []string{"course_id", "prereq_id"}},
			},
		},
		{
			Name:       TableHandouts,
			PrimaryKey: serialID(),
			Columns: []ColumnSpec{
				{Name: "url", Type: "text"},
				{Name: "language_code", Type: "char(2)", References: "languages(language_code)"},
				{Name: "course_id", Type: "integer", References: "courses(id)"},
			},
		},
		{
			Name:       TableAdditionalMaterials,
			PrimaryKey: serialID(),
			Columns: []ColumnSpec{
				{Name: "url", Type: "text"},
				{Name: "course_id", Type: "integer", References: "courses(id)"},
			},
		},
		{
			Name: TableCourseSeries,
			Columns: []ColumnSpec{
				{Name: "course_id", Type: "integer", References: "courses(id)"},
				{Name: "series_id", Type: "integer", References: "series(id)"},
			},
			Constraints: []ConstraintSpec{
				{Kind: ConstraintPrimaryKey, Columns: []string{"course_id", "series_id"}},
			},
		},
	}
}

// CatalogTable returns the spec for one catalog table by name.
func CatalogTable(name string) (TableSpec, bool) {
	for _, t := range CatalogTables() {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}
