// Package dbtest opens throwaway SQLite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"live-session-service/internal/database"
)

// Open returns a private in-memory database with every table and index.
func Open(t testing.TB) *gorm.DB {
	return open(t, true)
}

// OpenWithoutIndexes skips the partial unique index so the compare-after-write
// path can be observed on its own.
func OpenWithoutIndexes(t testing.TB) *gorm.DB {
	return open(t, false)
}

func open(t testing.TB, withIndexes bool) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, m := range database.Models() {
		if err := db.AutoMigrate(m.Model); err != nil {
			t.Fatalf("failed to migrate %s: %v", m.TableName, err)
		}
	}
	if withIndexes {
		if err := database.CreateIndexes(db); err != nil {
			t.Fatalf("failed to create indexes: %v", err)
		}
	}
	return db
}
