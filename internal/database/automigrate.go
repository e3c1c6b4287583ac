package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"live-session-service/internal/domain"
)

// ModelInfo holds information about a domain model and its table name
type ModelInfo struct {
	Model     interface{}
	TableName string
}

// Models lists every table owned by the service in migration order.
func Models() []ModelInfo {
	return []ModelInfo{
		{&domain.AvailabilityWindow{}, "availability_windows"},
		{&domain.SpecialDayOverride{}, "special_day_overrides"},
		{&domain.AvailabilitySettings{}, "availability_settings"},
		{&domain.PresenceRecord{}, "presence_records"},
		{&domain.Booking{}, "bookings"},
		{&domain.SessionRequest{}, "session_requests"},
		{&domain.ActiveSession{}, "active_sessions"},
		{&domain.SessionChange{}, "session_changes"},
	}
}

// AutoMigrate creates every table, then the partial indexes gorm tags cannot express.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m.Model); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", m.TableName, err)
		}
	}
	return CreateIndexes(db)
}

// CreateIndexes adds the partial unique index that keeps a designer to one
// active session, and the lookup indexes used by the reaper and change feed.
// The statements are valid on both PostgreSQL and SQLite.
func CreateIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_session_designer_unique
			ON active_sessions (designer_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_active_session_created
			ON active_sessions (created_at) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_request_pending_created
			ON session_requests (created_at) WHERE status = 'pending'`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SafeAutoMigrate logs per-table progress while migrating
func SafeAutoMigrate(db *gorm.DB, logger *zap.Logger) error {
	migrator := db.Migrator()
	all := Models()

	logger.Info("Starting safe auto-migration", zap.Int("total_models", len(all)))

	for _, m := range all {
		tableExists := migrator.HasTable(m.Model)

		if err := db.AutoMigrate(m.Model); err != nil {
			logger.Error("Failed to migrate table",
				zap.String("table", m.TableName),
				zap.Bool("table_existed", tableExists),
				zap.Error(err),
			)
			return fmt.Errorf("failed to migrate table %s: %w", m.TableName, err)
		}

		logger.Debug("Migrated table",
			zap.String("table", m.TableName),
			zap.Bool("was_existing", tableExists),
		)
	}

	if err := CreateIndexes(db); err != nil {
		logger.Error("Failed to create indexes", zap.Error(err))
		return err
	}

	logger.Info("Safe auto-migration completed", zap.Int("tables_migrated", len(all)))
	return nil
}

// SafeAutoMigrateWithRetry runs SafeAutoMigrate with linear backoff
func SafeAutoMigrateWithRetry(db *gorm.DB, logger *zap.Logger, maxRetries int) error {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = SafeAutoMigrate(db, logger)
		if err == nil {
			return nil
		}

		if attempt < maxRetries {
			backoffDuration := time.Duration(attempt) * time.Second
			logger.Warn("Migration attempt failed, retrying...",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("backoff", backoffDuration),
				zap.Error(err),
			)
			time.Sleep(backoffDuration)
		}
	}

	logger.Error("Migration failed after all retry attempts",
		zap.Int("total_attempts", maxRetries),
		zap.Error(err),
	)
	return fmt.Errorf("migration failed after %d attempts: %w", maxRetries, err)
}
