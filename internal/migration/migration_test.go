package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrations_ArePaired(t *testing.T) {
	up, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	down, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, up)
	assert.Len(t, down, len(up))
}

func TestMigrate_AutoMigratesNonPostgresRemote(t *testing.T) {
	remote := dbtest.OpenRemote(t)
	cfg := config.Config{Remote: config.RemoteConfig{Type: "sqlite", Migrate: true}}

	require.NoError(t, Migrate(remote, cfg, zap.NewNop()))
	for _, table := range domain.Tables {
		assert.True(t, remote.Migrator().HasTable(table), table)
	}
}

func TestMigrate_SkipsWhenDisabled(t *testing.T) {
	remote := dbtest.OpenRemote(t)
	cfg := config.Config{Remote: config.RemoteConfig{Type: "sqlite"}}

	require.NoError(t, Migrate(remote, cfg, zap.NewNop()))
	assert.False(t, remote.Migrator().HasTable(domain.TableProducts))

	cfg.Remote.Migrate = true
	require.NoError(t, Migrate(&db.Remote{}, cfg, zap.NewNop()))
}
