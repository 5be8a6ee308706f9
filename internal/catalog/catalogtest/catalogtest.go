// Package catalogtest builds a seeded in-memory catalog database for tests.
package catalogtest

import (
	"bytes"
	"context"
	_ "embed"
	"testing"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"catalog/internal/catalog"
	"catalog/internal/multitable"
	csvparser "catalog/internal/parser/csv"
	"catalog/internal/storage/sqldb"
	sqlitestore "catalog/internal/storage/sqlite"
)

//go:embed courses.csv
var coursesCSV []byte

// DB returns a gorm handle on a fresh in-memory database holding the six
// course fixture, seeded through the real pipeline, plus a migrated users
// table. The connection closes when tb finishes.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	ctx := context.Background()

	conn, err := sqlitestore.Open(ctx, ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = conn.Close() })

	raw, err := csvparser.ReadTable(ctx, bytes.NewReader(coursesCSV), csvparser.Options{})
	if err != nil {
		tb.Fatalf("read fixture: %v", err)
	}
	e := &multitable.Engine{
		Repo:    sqldb.New(conn, sqlitestore.Dialect{}),
		Options: multitable.DefaultOptions(),
	}
	if _, err := e.Run(ctx, raw); err != nil {
		tb.Fatalf("seed fixture: %v", err)
	}

	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{Conn: conn}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("gorm open: %v", err)
	}
	if err := catalog.Migrate(ctx, db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}
