package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/storeledger/internal/search"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull every table from the remote backend into the ledger",
	RunE:  runSync,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild the product catalog from the remote backend",
	Long: `Reload products and batches from the remote backend, apply the latest
transactional prices and merge the result into the ledger. Without a remote
backend the catalog is built from the local ledger.`,
	RunE: runReconcile,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the product catalog",
	Args:  cobra.MinimumNArgs(1),
	Example: `  ledgerctl search panadol
  ledgerctl search --limit 5 "vitamin c"`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(syncCmd, reconcileCmd, searchCmd)

	searchCmd.Flags().Int("limit", search.DefaultLimit, "Maximum number of results")
}

func runSync(cmd *cobra.Command, _ []string) error {
	return withLedger(cmd, func(ctx context.Context, app *ledgerApp) error {
		report, err := app.Syncer.SyncFromCloud(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range report.Tables {
			status := "ok"
			if t.Error != "" {
				status = t.Error
			}
			fmt.Fprintf(out, "%-22s %6d rows  %s\n", t.Table, t.Rows, status)
		}
		fmt.Fprintf(out, "committed=%t kept_local=%d\n", report.Committed, report.KeptLocal)
		return nil
	})
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	return withLedger(cmd, func(ctx context.Context, app *ledgerApp) error {
		state, err := app.Catalog.Reload(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "source=%s items=%d overrides=%d degraded=%t\n",
			state.Source, len(state.Items), state.Overrides, state.Degraded)
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	query := strings.Join(args, " ")

	return withLedger(cmd, func(ctx context.Context, app *ledgerApp) error {
		if _, err := app.Catalog.Load(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range app.Catalog.Search(query, limit) {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\tavailable=%s\n",
				item.ID, item.Code, item.Name, item.SellingPrice.StringFixed(2), item.AvailableQuantity.String())
		}
		return nil
	})
}
