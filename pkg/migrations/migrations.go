package migrations

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// MigrateStore applies the embedded migrations creating the seeds table.
func MigrateStore(db *gorm.DB) error {
	goose.SetLogger(&logger{})
	goose.SetBaseFS(migrationFS)

	dialect, err := gooseDialect(db.Dialector.Name())
	if err != nil {
		return err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := goose.Up(sqlDB, "sql"); err != nil {
		return err
	}

	version, err := Version(db)
	if err != nil {
		return err
	}
	zap.S().Named("migrations").Infow("seeds schema is up to date", "version", version)
	return nil
}

// Version returns the last applied migration.
func Version(db *gorm.DB) (int64, error) {
	dialect, err := gooseDialect(db.Dialector.Name())
	if err != nil {
		return 0, err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return 0, err
	}
	return goose.GetDBVersion(sqlDB)
}

func gooseDialect(gormDialect string) (string, error) {
	switch gormDialect {
	case "postgres":
		return "postgres", nil
	case "sqlite":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("no migrations for %q databases", gormDialect)
	}
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) {
	zap.S().Named("migrations").Infof(format, v...)
}
func (m *logger) Fatalf(format string, v ...interface{}) {
	zap.S().Named("migrations").Fatalf(format, v...)
}
