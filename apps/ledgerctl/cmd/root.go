// Package cmd implements ledgerctl, the offline companion of the storeledger
// server. Every command restores the local cache, acts on the ledger and
// flushes the cache back before exiting.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/lock"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/log"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate a storeledger cache from the command line",
	Long: `ledgerctl works directly on the local cache used by the storeledger server.

Configuration is read from the same environment variables (and .env file)
as the server. Stop the server before running mutating commands against
the same cache.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Deadline for the whole command")
}

// ledgerApp is the slice of the server graph the commands need.
type ledgerApp struct {
	Log       *zap.Logger
	Store     *service.Store
	Persister *persistence.Persister
	Syncer    *cloudsync.Syncer
	Catalog   *catalog.Engine
	Settings  *config.SettingsHolder
}

// withLedger starts the ledger graph without the HTTP server, restores the
// cache, runs fn and flushes the cache on success.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, app *ledgerApp) error) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var l ledgerApp
	app := fx.New(
		fx.NopLogger,
		config.Module,
		log.Module,
		telemetry.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		clock.Module,
		lock.Module,
		outbox.Module,
		ledger.Module,
		persistence.Module,
		cloudsync.Module,
		catalog.Module,
		fx.Populate(&l.Log, &l.Store, &l.Persister, &l.Syncer, &l.Catalog, &l.Settings),
	)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	l.Log = l.Log.Named("ledgerctl").With(zap.String("command", cmd.Name()))
	res, err := l.Persister.Load(ctx)
	if err != nil {
		l.Log.Warn("cache restore failed, starting from an empty ledger", zap.Error(err))
	} else {
		l.Log.Debug("cache restored", zap.Bool("restored", res.Restored), zap.Int("rows", res.Rows))
	}

	if err := fn(ctx, &l); err != nil {
		return err
	}
	return l.Persister.Flush(ctx)
}
