// Package catalog is the read side of the course catalog: gorm models over
// the tables the seeder writes, a generic repository, and the Service the
// HTTP API calls.
package catalog

import "catalog/internal/storage"

type Level struct {
	ID        int64  `gorm:"primaryKey"`
	LevelName string `gorm:"column:level_name;size:255;uniqueIndex"`
}

func (Level) TableName() string { return storage.TableLevels }

type Format struct {
	ID         int64  `gorm:"primaryKey"`
	FormatName string `gorm:"column:format_name;size:255;uniqueIndex"`
}

func (Format) TableName() string { return storage.TableFormats }

type Series struct {
	ID         int64  `gorm:"primaryKey"`
	SeriesName string `gorm:"column:series_name;size:255;uniqueIndex"`
}

func (Series) TableName() string { return storage.TableSeries }

type Language struct {
	LanguageCode string `gorm:"column:language_code;primaryKey;size:2"`
	LanguageName string `gorm:"column:language_name;size:255;uniqueIndex"`
}

func (Language) TableName() string { return storage.TableLanguages }

// Course carries its associations for preloading. Series and Prereqs go
// through the course_series and prerequisites join tables.
type Course struct {
	ID          int64  `gorm:"primaryKey"`
	CourseName  string `gorm:"column:course_name;size:255;uniqueIndex"`
	Description string
	LevelID     int64
	FormatID    int64

	Level               Level
	Format              Format
	Series              []Series `gorm:"many2many:course_series;joinForeignKey:CourseID;joinReferences:SeriesID"`
	Prereqs             []Course `gorm:"many2many:prerequisites;joinForeignKey:CourseID;joinReferences:PrereqID"`
	Handouts            []Handout
	AdditionalMaterials []AdditionalMaterial
}

func (Course) TableName() string { return storage.TableCourses }

type Handout struct {
	ID           int64  `gorm:"primaryKey"`
	URL          string `gorm:"column:url"`
	LanguageCode string `gorm:"column:language_code;size:2"`
	CourseID     int64
}

func (Handout) TableName() string { return storage.TableHandouts }

type AdditionalMaterial struct {
	ID       int64  `gorm:"primaryKey"`
	URL      string `gorm:"column:url"`
	CourseID int64
}

func (AdditionalMaterial) TableName() string { return storage.TableAdditionalMaterials }

// User is an API account. The seeder never touches this table; the server
// migrates it on startup.
type User struct {
	ID             int64  `gorm:"primaryKey"`
	Username       string `gorm:"size:255;uniqueIndex;not null"`
	HashedPassword string `gorm:"not null" json:"-"`
	IsActive       bool   `gorm:"not null"`
}

func (User) TableName() string { return "users" }
