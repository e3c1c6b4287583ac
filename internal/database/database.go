package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"live-session-service/internal/config"
)

const pingTimeout = 5 * time.Second

// GormConfig is shared by the postgres store and the sqlite test databases.
// TranslateError lets the registry recognise a partial-index violation as
// gorm.ErrDuplicatedKey on either driver.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Open connects to the session store and verifies it answers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("session store handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	return db, nil
}

// OpenWithRetry keeps calling Open every retryInterval until it succeeds or
// ctx ends.
func OpenWithRetry(ctx context.Context, cfg config.DatabaseConfig, retryInterval time.Duration, log *zap.Logger) (*gorm.DB, error) {
	for attempt := 1; ; attempt++ {
		db, err := Open(ctx, cfg)
		if err == nil {
			log.Info("Session store connected", zap.Int("attempt", attempt))
			return db, nil
		}
		log.Warn("Session store not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", retryInterval),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session store not reachable after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
