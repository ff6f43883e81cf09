package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blastsum/internal/config"
)

// DatabaseManager manages the relational store connection
type DatabaseManager struct {
	driver string
	gormDB *gorm.DB
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// GORMConfig returns the gorm configuration used for the store. Driver
// errors are translated so duplicate keys surface as gorm.ErrDuplicatedKey.
func GORMConfig(log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(gormWriter{log: log}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// gormWriter forwards gorm's own log lines to zerolog
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Debug().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}

// Dialector picks the gorm dialector for the configured driver
func Dialector(cfg config.StoreConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// NewDatabaseManager opens and verifies the store configured by cfg
func NewDatabaseManager(cfg config.StoreConfig, log zerolog.Logger) (*DatabaseManager, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	return NewDatabaseManagerFromDialector(cfg.Driver, dialector, log)
}

// NewDatabaseManagerFromDialector opens the store through an explicit dialector
func NewDatabaseManagerFromDialector(driver string, dialector gorm.Dialector, log zerolog.Logger) (*DatabaseManager, error) {
	db, err := gorm.Open(dialector, GORMConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// One writer; SQLite cannot share a file between concurrent connections anyway
	sqlDB.SetMaxOpenConns(1)

	if err := runHealthCheck(db); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &DatabaseManager{
		driver: driver,
		gormDB: db,
		sqlDB:  sqlDB,
		logger: log,
	}, nil
}

// runHealthCheck performs a basic query to verify database connectivity
func runHealthCheck(db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error
}

// Driver returns the configured driver name
func (d *DatabaseManager) Driver() string {
	return d.driver
}

// GetGormDB returns the GORM database instance
func (d *DatabaseManager) GetGormDB() *gorm.DB {
	return d.gormDB
}

// Close closes the database connection
func (d *DatabaseManager) Close() error {
	return d.sqlDB.Close()
}
