package migration

import (
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate prepares the remote schema when REMOTE_MIGRATE is set. Postgres gets
// the versioned SQL; mysql and sqlite remotes are auto-migrated from the models.
func Migrate(remote *db.Remote, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if !cfg.Remote.Migrate || !remote.Configured() {
		return nil
	}

	if remote.Type != "postgres" {
		log.Info("auto-migrating remote schema", zap.String("type", remote.Type))
		return AutoMigrate(remote.DB)
	}

	sqlDB, err := remote.DB.DB()
	if err != nil {
		return err
	}
	log.Info("applying remote migrations")
	return RunMigrations(sqlDB)
}
