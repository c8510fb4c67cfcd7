package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver selects the database backend. The set is closed and the choice is
// made once at process startup from settings.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Open connects to the configured database. TranslateError is enabled so
// unique-key violations surface as gorm.ErrDuplicatedKey on every dialect.
func Open(driver Driver, dsn string) (*gorm.DB, error) {
	config := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch driver {
	case DriverPostgres:
		db, err := gorm.Open(postgres.Open(dsn), config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return db, nil
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(dsn), config)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver '%s'", driver)
	}
}
