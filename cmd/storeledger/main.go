package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/bootstrap"
	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger"
	"github.com/smallbiznis/storeledger/internal/lock"
	"github.com/smallbiznis/storeledger/internal/migration"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/smallbiznis/storeledger/internal/ratelimit"
	"github.com/smallbiznis/storeledger/internal/server"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/log"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Ledger
		outbox.Module,
		ledger.Module,
		persistence.Module,
		cloudsync.Module,
		catalog.Module,
		authorization.Module,
		bootstrap.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
