package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the cash drawer balance and open customer and supplier balances",
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

// summary of the ledger position. Receivables and payables only count
// positive balances; credit balances are reported separately.
type summary struct {
	Cash            decimal.Decimal
	Receivables     decimal.Decimal
	CustomerCredits decimal.Decimal
	Payables        decimal.Decimal
	SupplierCredits decimal.Decimal
	LowStock        int
}

func summarize(store *service.Store, lowStockThreshold decimal.Decimal) summary {
	s := summary{Cash: store.CashBalance()}
	for _, c := range store.Customers() {
		if c.CurrentBalance.IsPositive() {
			s.Receivables = s.Receivables.Add(c.CurrentBalance)
		} else {
			s.CustomerCredits = s.CustomerCredits.Add(c.CurrentBalance.Neg())
		}
	}
	for _, sp := range store.Suppliers() {
		if sp.CurrentBalance.IsPositive() {
			s.Payables = s.Payables.Add(sp.CurrentBalance)
		} else {
			s.SupplierCredits = s.SupplierCredits.Add(sp.CurrentBalance.Neg())
		}
	}
	s.LowStock = len(store.LowStockProducts(lowStockThreshold))
	return s
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "cash              %s\n", s.Cash.StringFixed(2))
	fmt.Fprintf(w, "receivables       %s\n", s.Receivables.StringFixed(2))
	fmt.Fprintf(w, "customer credits  %s\n", s.CustomerCredits.StringFixed(2))
	fmt.Fprintf(w, "payables          %s\n", s.Payables.StringFixed(2))
	fmt.Fprintf(w, "supplier credits  %s\n", s.SupplierCredits.StringFixed(2))
	fmt.Fprintf(w, "low stock items   %d\n", s.LowStock)
}

func runBalance(cmd *cobra.Command, _ []string) error {
	return withLedger(cmd, func(_ context.Context, app *ledgerApp) error {
		threshold := decimal.NewFromInt(int64(app.Settings.Get().LowStockThreshold))
		summarize(app.Store, threshold).print(cmd.OutOrStdout())
		return nil
	})
}
