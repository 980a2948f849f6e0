package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"go.uber.org/zap"
)

// KeepFunc reports whether a local row must survive a remote replace.
type KeepFunc func(table string, id snowflake.ID) bool

func (s *Store) reset(snap domain.Snapshot) {
	s.products = indexRows(snap.Products)
	s.batches = indexRows(snap.Batches)
	s.customers = indexRows(snap.Customers)
	s.suppliers = indexRows(snap.Suppliers)
	s.invoices = indexRows(snap.Invoices)
	s.purchaseInvoices = indexRows(snap.PurchaseInvoices)
	s.cashTransactions = indexRows(snap.CashTransactions)
	s.warehouses = indexRows(snap.Warehouses)
	s.representatives = indexRows(snap.Representatives)
	s.dailyClosings = indexRows(snap.DailyClosings)
	s.pendingAdjustments = indexRows(snap.PendingAdjustments)
	s.purchaseOrders = indexRows(snap.PurchaseOrders)
}

// Snapshot copies every collection, soft-deleted rows included.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Store) snapshot() domain.Snapshot {
	return domain.Snapshot{
		Products:           allRows(s.products),
		Batches:            allRows(s.batches),
		Customers:          allRows(s.customers),
		Suppliers:          allRows(s.suppliers),
		Invoices:           allRows(s.invoices),
		PurchaseInvoices:   allRows(s.purchaseInvoices),
		CashTransactions:   allRows(s.cashTransactions),
		Warehouses:         allRows(s.warehouses),
		Representatives:    allRows(s.representatives),
		DailyClosings:      allRows(s.dailyClosings),
		PendingAdjustments: allRows(s.pendingAdjustments),
		PurchaseOrders:     allRows(s.purchaseOrders),
	}
}

// Empty reports whether the store holds no rows at all.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)+len(s.batches)+len(s.customers)+len(s.suppliers)+
		len(s.invoices)+len(s.purchaseInvoices)+len(s.cashTransactions)+
		len(s.warehouses)+len(s.representatives)+len(s.dailyClosings)+
		len(s.pendingAdjustments)+len(s.purchaseOrders) == 0
}

// Restore replaces the store with a snapshot read back from the local cache.
// Nothing is enqueued or persisted.
func (s *Store) Restore(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(snap)
}

// ReplaceFromRemote swaps in the listed tables of a remote snapshot. A local
// row survives when its version is newer than the remote one or keep says it
// still has unreplayed changes; rows the remote no longer has are dropped
// unless keep holds them. It returns how many local rows survived.
func (s *Store) ReplaceFromRemote(ctx context.Context, snap domain.Snapshot, tables []string, keep KeepFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := 0
	for _, table := range tables {
		kept += s.replaceTable(table, snap, keep)
	}

	if s.persist != nil {
		s.persist.Schedule()
	}
	s.log.Info("ledger replaced from remote",
		zap.Strings("tables", tables),
		zap.Int("kept_local", kept),
	)
	return kept
}

func (s *Store) replaceTable(table string, snap domain.Snapshot, keep KeepFunc) int {
	var keepTable func(snowflake.ID) bool
	if keep != nil {
		keepTable = func(id snowflake.ID) bool { return keep(table, id) }
	}

	var kept int
	switch table {
	case domain.TableProducts:
		s.products, kept = mergeRows(s.products, snap.Products, keepTable)
	case domain.TableBatches:
		s.batches, kept = mergeRows(s.batches, snap.Batches, keepTable)
	case domain.TableCustomers:
		s.customers, kept = mergeRows(s.customers, snap.Customers, keepTable)
	case domain.TableSuppliers:
		s.suppliers, kept = mergeRows(s.suppliers, snap.Suppliers, keepTable)
	case domain.TableInvoices:
		s.invoices, kept = mergeRows(s.invoices, snap.Invoices, keepTable)
	case domain.TablePurchaseInvoices:
		s.purchaseInvoices, kept = mergeRows(s.purchaseInvoices, snap.PurchaseInvoices, keepTable)
	case domain.TableCashTransactions:
		s.cashTransactions, kept = mergeRows(s.cashTransactions, snap.CashTransactions, keepTable)
	case domain.TableWarehouses:
		s.warehouses, kept = mergeRows(s.warehouses, snap.Warehouses, keepTable)
	case domain.TableRepresentatives:
		s.representatives, kept = mergeRows(s.representatives, snap.Representatives, keepTable)
	case domain.TableDailyClosings:
		s.dailyClosings, kept = mergeRows(s.dailyClosings, snap.DailyClosings, keepTable)
	case domain.TablePendingAdjustments:
		s.pendingAdjustments, kept = mergeRows(s.pendingAdjustments, snap.PendingAdjustments, keepTable)
	case domain.TablePurchaseOrders:
		s.purchaseOrders, kept = mergeRows(s.purchaseOrders, snap.PurchaseOrders, keepTable)
	}
	return kept
}

// ReplaceCatalog writes the baseline products and batches back into the store
// under the same merge rule as ReplaceFromRemote.
func (s *Store) ReplaceCatalog(ctx context.Context, products []domain.Product, batches []domain.Batch, keep KeepFunc) int {
	return s.ReplaceFromRemote(ctx, domain.Snapshot{Products: products, Batches: batches},
		[]string{domain.TableProducts, domain.TableBatches}, keep)
}

func (s *Store) Export() domain.ExportDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := config.DefaultSettings()
	if s.settings != nil {
		settings = s.settings.Get()
	}
	return domain.ExportDocument{
		Format:        domain.BackupFormat,
		SchemaVersion: domain.BackupSchemaVersion,
		ExportedAt:    s.now(),
		Settings:      settings,
		Data:          s.snapshot(),
	}
}

// Import replaces the whole store with a backup. Balances are taken as-is.
func (s *Store) Import(ctx context.Context, doc domain.ExportDocument) (err error) {
	defer func() { s.metrics.RecordMutation("import", err) }()

	if err := doc.Validate(); err != nil {
		return err
	}
	if s.settings != nil {
		if err := s.settings.Set(doc.Settings); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset(doc.Data)
	if s.persist != nil {
		s.persist.Schedule()
	}
	s.log.Info("ledger imported from backup", zap.Int("rows", doc.Data.Len()))
	return nil
}
