package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/log"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(OpenLocal),
	fx.Provide(OpenRemote),
)

// OpenLocal opens the on-device sqlite file.
func OpenLocal(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Local, error) {
	conn, err := gorm.Open(sqlite.Open(cfg.LocalDBPath), &gorm.Config{
		Logger: log.NewGormLogger(logger, "local", log.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY under the debounce timer.
	sqlDB.SetMaxOpenConns(1)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	return &Local{DB: conn}, nil
}

// OpenRemote dials the cloud backend, or returns an unconfigured handle when REMOTE_DB_TYPE is empty.
func OpenRemote(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Remote, error) {
	if !cfg.Remote.Configured() {
		logger.Info("remote backend not configured; running local-only")
		return &Remote{}, nil
	}

	dialector, err := Dialect(cfg.Remote)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: log.NewGormLogger(logger, "remote", log.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("open remote database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Remote.Name))); err != nil {
		return nil, err
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.Remote.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Remote.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.Remote.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Remote.ConnMaxLifetime) * time.Second)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	logger.Info("remote backend connected",
		zap.String("type", cfg.Remote.Type),
		zap.String("host", cfg.Remote.Host),
		zap.String("name", cfg.Remote.Name),
	)
	return &Remote{DB: conn, Type: cfg.Remote.Type}, nil
}
