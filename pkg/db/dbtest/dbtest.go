// Package dbtest opens throwaway in-memory sqlite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storeledger/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, "")
}

func open(t *testing.T, suffix string) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + suffix
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = conn.Exec("PRAGMA busy_timeout = 5000").Error

	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// OpenLocal and OpenRemote never share a database within one test.
func OpenLocal(t *testing.T) *db.Local {
	t.Helper()
	return &db.Local{DB: open(t, "_local")}
}

func OpenRemote(t *testing.T) *db.Remote {
	t.Helper()
	return &db.Remote{DB: open(t, "_remote"), Type: "sqlite"}
}
