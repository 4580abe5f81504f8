package models_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// openTestDB opens a migrated SQLite database private to the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "payroll.db"))
	db, err := config.OpenDatabase()
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func countEvents(t *testing.T, db *gorm.DB, recordID int, eventType models.PayrollEventType) int64 {
	t.Helper()
	var n int64
	q := db.Model(&models.PayrollEvent{}).Where("payroll_record_id = ?", recordID)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func mustFind(t *testing.T, store *models.PayrollStore, id int) *models.PayrollRecord {
	t.Helper()
	rec, err := store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%d): %v", id, err)
	}
	return rec
}
