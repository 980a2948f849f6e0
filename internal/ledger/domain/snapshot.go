package domain

import (
	"time"

	"github.com/smallbiznis/storeledger/internal/config"
)

// Snapshot holds every collection of the store, including soft-deleted rows.
type Snapshot struct {
	Products           []Product           `json:"products"`
	Batches            []Batch             `json:"batches"`
	Customers          []Customer          `json:"customers"`
	Suppliers          []Supplier          `json:"suppliers"`
	Invoices           []Invoice           `json:"invoices"`
	PurchaseInvoices   []PurchaseInvoice   `json:"purchase_invoices"`
	CashTransactions   []CashTransaction   `json:"cash_transactions"`
	Warehouses         []Warehouse         `json:"warehouses"`
	Representatives    []Representative    `json:"representatives"`
	DailyClosings      []DailyClosing      `json:"daily_closings"`
	PendingAdjustments []PendingAdjustment `json:"pending_adjustments"`
	PurchaseOrders     []PurchaseOrder     `json:"purchase_orders"`
}

// Len returns the total number of rows across all collections.
func (s Snapshot) Len() int {
	return len(s.Products) + len(s.Batches) + len(s.Customers) + len(s.Suppliers) +
		len(s.Invoices) + len(s.PurchaseInvoices) + len(s.CashTransactions) +
		len(s.Warehouses) + len(s.Representatives) + len(s.DailyClosings) +
		len(s.PendingAdjustments) + len(s.PurchaseOrders)
}

// TableLen returns the row count of one named collection.
func (s Snapshot) TableLen(table string) int {
	switch table {
	case TableProducts:
		return len(s.Products)
	case TableBatches:
		return len(s.Batches)
	case TableCustomers:
		return len(s.Customers)
	case TableSuppliers:
		return len(s.Suppliers)
	case TableInvoices:
		return len(s.Invoices)
	case TablePurchaseInvoices:
		return len(s.PurchaseInvoices)
	case TableCashTransactions:
		return len(s.CashTransactions)
	case TableWarehouses:
		return len(s.Warehouses)
	case TableRepresentatives:
		return len(s.Representatives)
	case TableDailyClosings:
		return len(s.DailyClosings)
	case TablePendingAdjustments:
		return len(s.PendingAdjustments)
	case TablePurchaseOrders:
		return len(s.PurchaseOrders)
	}
	return 0
}

const (
	BackupFormat        = "storeledger.backup"
	BackupSchemaVersion = 1
)

// ExportDocument is the full-state backup written by Export.
type ExportDocument struct {
	Format        string          `json:"format"`
	SchemaVersion int             `json:"schema_version"`
	ExportedAt    time.Time       `json:"exported_at"`
	Settings      config.Settings `json:"settings"`
	Data          Snapshot        `json:"data"`
}

func (d ExportDocument) Validate() error {
	if d.Format != BackupFormat || d.SchemaVersion < 1 || d.SchemaVersion > BackupSchemaVersion {
		return ErrInvalidBackup
	}
	return nil
}
