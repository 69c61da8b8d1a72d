package main

import (
	"fmt"
	"strings"
	"time"

	"kovoy/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = "kovoy.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is not set; a Postgres DSN is required when DB_DRIVER=postgres")
		}
		dialector = postgres.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database: %w", cfg.DBDriver, err)
	}

	if cfg.AutoMigrate {
		migrateDB(db, log)
	}
	return db, nil
}

// migrateDB migrates models individually so a failure on one doesn't block
// the others.
func migrateDB(db *gorm.DB, log *zap.Logger) {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		log.Warn("migration warning (users)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
		log.Warn("migration warning (refresh_tokens)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.TwoFactorCode{}); err != nil {
		log.Warn("migration warning (two_factor_codes)", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.EmailToken{}); err != nil {
		log.Warn("migration warning (email_tokens)", zap.Error(err))
	}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "UNIQUE constraint") || strings.Contains(s, "unique constraint")
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "lock timeout") || strings.Contains(s, "deadlock detected")
}

// withBusyRetry retries fn a few times when the store reports a transient
// lock condition, then surfaces errStoreBusy for a retryable 503 response.
func withBusyRetry(fn func() error) error {
	var err error
	for i := 0; i < 3; i++ {
		err = fn()
		if !isBusyError(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return errStoreBusy
}
