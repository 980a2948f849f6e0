package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Enqueuer records row versions for later replay against the remote backend.
type Enqueuer interface {
	Enqueue(ctx context.Context, table string, id snowflake.ID, version int64, payload any) error
}

// Persister schedules a debounced write of the store snapshot.
type Persister interface {
	Schedule()
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Outbox   *outbox.Service        `optional:"true"`
	Metrics  *telemetry.Metrics     `optional:"true"`
	Settings *config.SettingsHolder `optional:"true"`
}

// Store is the in-memory ledger. All balance bookkeeping happens here.
type Store struct {
	mu sync.RWMutex

	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	outbox   Enqueuer
	persist  Persister
	metrics  *telemetry.Metrics
	settings *config.SettingsHolder

	salesPolicy    domain.CashPolicy
	purchasePolicy domain.CashPolicy

	products           map[snowflake.ID]*domain.Product
	batches            map[snowflake.ID]*domain.Batch
	customers          map[snowflake.ID]*domain.Customer
	suppliers          map[snowflake.ID]*domain.Supplier
	invoices           map[snowflake.ID]*domain.Invoice
	purchaseInvoices   map[snowflake.ID]*domain.PurchaseInvoice
	cashTransactions   map[snowflake.ID]*domain.CashTransaction
	warehouses         map[snowflake.ID]*domain.Warehouse
	representatives    map[snowflake.ID]*domain.Representative
	dailyClosings      map[snowflake.ID]*domain.DailyClosing
	pendingAdjustments map[snowflake.ID]*domain.PendingAdjustment
	purchaseOrders     map[snowflake.ID]*domain.PurchaseOrder
}

func New(p Params) (*Store, error) {
	salesPolicy, err := domain.ParseCashPolicy(p.Config.Ledger.SalesCashPolicy)
	if err != nil {
		return nil, fmt.Errorf("SALES_CASH_POLICY: %w", err)
	}
	purchasePolicy, err := domain.ParseCashPolicy(p.Config.Ledger.PurchaseCashPolicy)
	if err != nil {
		return nil, fmt.Errorf("PURCHASE_CASH_POLICY: %w", err)
	}

	s := &Store{
		log:            p.Log.Named("ledger.store"),
		genID:          p.GenID,
		clock:          p.Clock,
		metrics:        p.Metrics,
		settings:       p.Settings,
		salesPolicy:    salesPolicy,
		purchasePolicy: purchasePolicy,
	}
	if p.Outbox != nil {
		s.outbox = p.Outbox
	}
	s.reset(domain.Snapshot{})
	return s, nil
}

// SetPersistence attaches the cache writer once it has been built around this store.
func (s *Store) SetPersistence(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
}

func (s *Store) SalesCashPolicy() domain.CashPolicy    { return s.salesPolicy }
func (s *Store) PurchaseCashPolicy() domain.CashPolicy { return s.purchasePolicy }

func (s *Store) now() time.Time {
	return s.clock.Now()
}

func (s *Store) newEnvelope() domain.Envelope {
	now := s.now()
	return domain.Envelope{
		ID:        s.genID.Generate(),
		Status:    domain.StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// record is any entity pointer the store mutates.
type record interface {
	domain.Entity
	Touch(time.Time)
}

// mutation collects the rows one operation created or changed.
type mutation struct {
	name    string
	seen    map[outbox.EntityKey]struct{}
	records []record
}

func newMutation(name string) *mutation {
	return &mutation{name: name, seen: map[outbox.EntityKey]struct{}{}}
}

func (m *mutation) add(r record) bool {
	key := outbox.EntityKey{Table: r.TableName(), ID: r.Meta().ID}
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	m.records = append(m.records, r)
	return true
}

func (s *Store) created(m *mutation, r record) {
	m.add(r)
}

// updated bumps the version of r at most once per mutation.
func (s *Store) updated(m *mutation, r record) {
	if m.add(r) {
		r.Touch(s.now())
	}
}

// commit must be called with the write lock held.
func (s *Store) commit(ctx context.Context, m *mutation) {
	if s.outbox != nil {
		for _, r := range m.records {
			meta := r.Meta()
			if err := s.outbox.Enqueue(ctx, r.TableName(), meta.ID, meta.Version, r); err != nil {
				s.log.Warn("outbox enqueue failed",
					zap.String("operation", m.name),
					zap.String("table", r.TableName()),
					zap.String("id", meta.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
	if s.persist != nil {
		s.persist.Schedule()
	}
	s.log.Debug("ledger mutation",
		zap.String("operation", m.name),
		zap.Int("records", len(m.records)),
	)
}
