package cloudsync

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/pkg/repository"
	"gorm.io/gorm"
)

type tableSpec struct {
	// fetch reads the whole table and returns a setter for the snapshot slot.
	fetch func(ctx context.Context, g *Gateway) (assign func(*domain.Snapshot), rows int, err error)
	// apply upserts one JSON encoded row unless the remote copy is newer.
	apply func(ctx context.Context, conn *gorm.DB, payload []byte) (bool, error)
}

func register[T any](table string, set func(*domain.Snapshot, []T)) tableSpec {
	return tableSpec{
		fetch: func(ctx context.Context, g *Gateway) (func(*domain.Snapshot), int, error) {
			rows, err := FetchTable[T](ctx, g, table)
			return func(snap *domain.Snapshot) { set(snap, rows) }, len(rows), err
		},
		apply: func(ctx context.Context, conn *gorm.DB, payload []byte) (bool, error) {
			var row T
			if err := json.Unmarshal(payload, &row); err != nil {
				return false, err
			}
			return repository.ProvideStore[T](conn).UpsertNewer(ctx, &row)
		},
	}
}

var registry = map[string]tableSpec{
	domain.TableWarehouses: register(domain.TableWarehouses, func(s *domain.Snapshot, rows []domain.Warehouse) {
		s.Warehouses = rows
	}),
	domain.TableProducts: register(domain.TableProducts, func(s *domain.Snapshot, rows []domain.Product) {
		s.Products = rows
	}),
	domain.TableBatches: register(domain.TableBatches, func(s *domain.Snapshot, rows []domain.Batch) {
		s.Batches = rows
	}),
	domain.TableCustomers: register(domain.TableCustomers, func(s *domain.Snapshot, rows []domain.Customer) {
		s.Customers = rows
	}),
	domain.TableSuppliers: register(domain.TableSuppliers, func(s *domain.Snapshot, rows []domain.Supplier) {
		s.Suppliers = rows
	}),
	domain.TableRepresentatives: register(domain.TableRepresentatives, func(s *domain.Snapshot, rows []domain.Representative) {
		s.Representatives = rows
	}),
	domain.TableInvoices: register(domain.TableInvoices, func(s *domain.Snapshot, rows []domain.Invoice) {
		s.Invoices = rows
	}),
	domain.TablePurchaseInvoices: register(domain.TablePurchaseInvoices, func(s *domain.Snapshot, rows []domain.PurchaseInvoice) {
		s.PurchaseInvoices = rows
	}),
	domain.TableCashTransactions: register(domain.TableCashTransactions, func(s *domain.Snapshot, rows []domain.CashTransaction) {
		s.CashTransactions = rows
	}),
	domain.TablePurchaseOrders: register(domain.TablePurchaseOrders, func(s *domain.Snapshot, rows []domain.PurchaseOrder) {
		s.PurchaseOrders = rows
	}),
	domain.TablePendingAdjustments: register(domain.TablePendingAdjustments, func(s *domain.Snapshot, rows []domain.PendingAdjustment) {
		s.PendingAdjustments = rows
	}),
	domain.TableDailyClosings: register(domain.TableDailyClosings, func(s *domain.Snapshot, rows []domain.DailyClosing) {
		s.DailyClosings = rows
	}),
}
