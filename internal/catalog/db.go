package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	sqlitestore "catalog/internal/storage/sqlite"
)

// Open connects gorm to the catalog database. kind is "postgres" or
// "sqlite"; sqlite goes through the same pure-Go connection the seeder
// uses.
func Open(ctx context.Context, kind, dsn string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger: gormLogger.New(
			zap.NewStdLog(log.Named("gorm")),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var dialector gorm.Dialector
	switch kind {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		conn, err := sqlitestore.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		dialector = gormsqlite.New(gormsqlite.Config{Conn: conn})
	default:
		return nil, fmt.Errorf("catalog: unsupported DB_KIND %q (want postgres|sqlite)", kind)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", kind, err)
	}
	return db, nil
}

// Migrate creates the users table. Catalog tables belong to the seeder.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
