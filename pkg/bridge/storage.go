package bridge

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/attaradev/jetstream-bridge/pkg/errors"
)

// OpenStore opens the GORM connection backing the outbox/inbox stores and
// migrates their tables. It supports "postgres" (production) and "sqlite"
// (tests, single-process deployments).
func OpenStore(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, WrapConfigurationError("BRIDGE_DB_DSN is required for driver postgres", nil)
		}
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite":
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, WrapConfigurationError(fmt.Sprintf("unsupported database driver %q", cfg.DatabaseDriver), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bridge store")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&OutboxRow{}, &InboxRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate bridge tables")
	}

	return db, nil
}
