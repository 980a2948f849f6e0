package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup document of the whole ledger",
	Example: `  ledgerctl export --out storeledger.json
  ledgerctl export > storeledger.json`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the ledger with a backup document",
	Long: `Replace every table of the ledger with the content of a backup document
produced by "ledgerctl export" or GET /v1/backup. Imported rows are not
pushed to the remote backend.`,
	Example: `  ledgerctl import --in storeledger.json`,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().String("out", "", "Output file (default: stdout)")
	importCmd.Flags().String("in", "", "Backup file to import")
	_ = importCmd.MarkFlagRequired("in")
}

func runExport(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	return withLedger(cmd, func(_ context.Context, app *ledgerApp) error {
		doc := app.Store.Export()
		if out == "" {
			return writeDocument(cmd.OutOrStdout(), doc)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		if err := writeDocument(f, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows to %s\n", doc.Data.Len(), out)
		return nil
	})
}

func runImport(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open %s: %w", in, err)
	}
	defer f.Close()

	doc, err := readDocument(f)
	if err != nil {
		return err
	}
	return withLedger(cmd, func(ctx context.Context, app *ledgerApp) error {
		if err := app.Store.Import(ctx, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows\n", doc.Data.Len())
		return nil
	})
}

func writeDocument(w io.Writer, doc domain.ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func readDocument(r io.Reader) (domain.ExportDocument, error) {
	var doc domain.ExportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode backup: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return doc, err
	}
	return doc, nil
}
