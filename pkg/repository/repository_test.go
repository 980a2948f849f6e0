package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type versionedRow struct {
	ID      int64 `gorm:"primaryKey;autoIncrement:false"`
	Name    string
	Version int64
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn := dbtest.Open(t)
	require.NoError(t, conn.AutoMigrate(&versionedRow{}))
	return conn
}

func TestUpsertNewer_SkipsOlderVersions(t *testing.T) {
	ctx := context.Background()
	repo := ProvideStore[versionedRow](openSQLite(t))

	applied, err := repo.UpsertNewer(ctx, &versionedRow{ID: 1, Name: "v2", Version: 2})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.UpsertNewer(ctx, &versionedRow{ID: 1, Name: "v1", Version: 1})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.UpsertNewer(ctx, &versionedRow{ID: 1, Name: "v3", Version: 3})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repo.FindOne(ctx, &versionedRow{ID: 1})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v3", got.Name)
	assert.EqualValues(t, 3, got.Version)
}

func TestUpsertNewer_MySQLGuardsEveryColumn(t *testing.T) {
	conn, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/ledger",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, SkipDefaultTransaction: true})
	require.NoError(t, err)

	stmt := &gorm.Statement{DB: conn}
	require.NoError(t, stmt.Parse(&versionedRow{}))

	row := versionedRow{ID: 1, Name: "v1", Version: 1}
	sql := conn.Clauses(newerOnConflict(conn, stmt.Schema)).Create(&row).Statement.SQL.String()

	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE "+
		"`name`=IF(VALUES(`version`) > `version`, VALUES(`name`), `name`),"+
		"`version`=IF(VALUES(`version`) > `version`, VALUES(`version`), `version`)")
	assert.NotContains(t, sql, "`id`=")
}
