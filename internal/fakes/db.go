package fakes

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

// NewDB opens a silent sqlite database at dsn and creates the session table
// so tests can seed rows before the store under test opens it.
func NewDB(t *testing.T, dsn, table string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Table(table).AutoMigrate(&keyproxy.StoredValue{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// MemoryDSN is a shared in-memory sqlite DSN unique to the test, so several
// opens see the same database.
func MemoryDSN(t *testing.T) string {
	return "file:" + t.Name() + "?mode=memory&cache=shared"
}
