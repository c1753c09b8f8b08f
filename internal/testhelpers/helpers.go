// Package testhelpers provides shared fixtures for package tests: an
// in-memory database, a quiet logger and a recording fan-out publisher.
package testhelpers

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roomrelay/backend/internal/database"
	"roomrelay/backend/internal/store"
)

var dbSeq atomic.Int64

// Logger returns a debug level logger.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// NewDB opens a fresh, migrated in-memory sqlite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:roomrelay_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := database.Connect("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewStore returns a GormStore on a fresh in-memory database.
func NewStore(t testing.TB) *store.GormStore {
	t.Helper()
	return store.NewGormStore(NewDB(t), Logger())
}
