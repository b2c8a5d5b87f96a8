// Package db opens the run store database and manages its schema.
package db

import (
	"fmt"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	"github.com/zulandar/modelyard/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteDSN returns the sqlite DSN for path with a busy timeout and WAL
// journaling so concurrent readers and a writer do not fail immediately.
func SQLiteDSN(path string) string {
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Connect opens a GORM connection for the configured store driver.
func Connect(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	case "mysql":
		dialector = gormmysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", Identity(cfg), err)
	}
	return db, nil
}

// Identity returns a stable, credential-free string naming the database a
// StoreConfig points at. Two configs that address the same database yield
// the same identity.
func Identity(cfg config.StoreConfig) string {
	switch cfg.Driver {
	case "mysql":
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "mysql://invalid"
		}
		return fmt.Sprintf("mysql://%s/%s", parsed.Addr, parsed.DBName)
	default:
		if cfg.Path == ":memory:" {
			return "sqlite://:memory:"
		}
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			abs = cfg.Path
		}
		return "sqlite://" + abs
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return sqlDB.Close()
}
