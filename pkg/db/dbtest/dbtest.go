// Package dbtest opens throwaway SQLite databases carrying the full schema.
package dbtest

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bistrohq/bistro-backend/pkg/db/models"
)

// Open returns an isolated in-memory database migrated with every model.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, "file:bistro_"+uuid.NewString()+"?mode=memory&cache=shared&_foreign_keys=on", 0)
}

// OpenFile returns a file-backed database in a temp dir that serves up to
// maxConns connections at once. Writers take the database lock when their
// transaction begins and wait for it, so concurrent callers really contend.
func OpenFile(t testing.TB, maxConns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bistro.db")
	return open(t, path+"?_foreign_keys=on&_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", maxConns)
}

func open(t testing.TB, dsn string, maxConns int) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
