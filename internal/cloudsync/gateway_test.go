package cloudsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRemote(t *testing.T) *db.Remote {
	t.Helper()
	remote := dbtest.OpenRemote(t)
	require.NoError(t, remote.AutoMigrate(domain.Models()...))
	return remote
}

func newGateway(t *testing.T, remote *db.Remote, pageSize int) *Gateway {
	t.Helper()
	g, err := NewGateway(GatewayParams{
		Remote: remote,
		Config: config.Config{Sync: config.SyncConfig{PageSize: pageSize}},
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)
	return g
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return node
}

func envelope(id snowflake.ID, version int64, at time.Time) domain.Envelope {
	return domain.Envelope{ID: id, Status: domain.StatusActive, Version: version, CreatedAt: at, UpdatedAt: at}
}

func seedRemoteCustomers(t *testing.T, remote *db.Remote, node *snowflake.Node, n int) []domain.Customer {
	t.Helper()
	out := make([]domain.Customer, 0, n)
	for i := 0; i < n; i++ {
		c := domain.Customer{
			Envelope:       envelope(node.Generate(), 1, testNow.Add(time.Duration(i)*time.Minute)),
			Name:           "Customer",
			CurrentBalance: decimal.NewFromInt(int64(i)),
		}
		require.NoError(t, remote.Create(&c).Error)
		out = append(out, c)
	}
	return out
}

func countQueries(t *testing.T, conn *gorm.DB) *int {
	t.Helper()
	calls := 0
	require.NoError(t, conn.Callback().Query().After("gorm:query").Register("test:count", func(*gorm.DB) {
		calls++
	}))
	return &calls
}

func TestFetchTable_ExactMultipleOfPageSize(t *testing.T) {
	remote := newRemote(t)
	seeded := seedRemoteCustomers(t, remote, newNode(t), 6)
	g := newGateway(t, remote, 3)
	calls := countQueries(t, remote.DB)

	rows, err := FetchTable[domain.Customer](context.Background(), g, domain.TableCustomers)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	// two full pages, then the empty terminal page
	assert.Equal(t, 3, *calls)
	// newest first
	assert.Equal(t, seeded[5].ID, rows[0].ID)
	assert.Equal(t, seeded[0].ID, rows[5].ID)
}

func TestFetchTable_ShortLastPage(t *testing.T) {
	remote := newRemote(t)
	seedRemoteCustomers(t, remote, newNode(t), 7)
	g := newGateway(t, remote, 3)
	calls := countQueries(t, remote.DB)

	rows, err := FetchTable[domain.Customer](context.Background(), g, domain.TableCustomers)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.Equal(t, 3, *calls)
}

func TestFetchTable_ErrorNamesTableAndPage(t *testing.T) {
	remote := dbtest.OpenRemote(t)
	g := newGateway(t, remote, 3)

	rows, err := FetchTable[domain.Customer](context.Background(), g, domain.TableCustomers)
	require.Error(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, err.Error(), "fetch customers page 0")
}

func TestFetchAllFromTable(t *testing.T) {
	remote := newRemote(t)
	seedRemoteCustomers(t, remote, newNode(t), 4)
	g := newGateway(t, remote, 2)

	rows, err := g.FetchAllFromTable(context.Background(), domain.TableCustomers)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Customer", rows[0]["name"])

	_, err = g.FetchAllFromTable(context.Background(), "users; drop table customers")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestGateway_NotConfigured(t *testing.T) {
	g := newGateway(t, &db.Remote{}, 10)
	ctx := context.Background()

	assert.False(t, g.Enabled())

	_, err := FetchTable[domain.Product](ctx, g, domain.TableProducts)
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)

	prices, err := g.FetchLatestPricesMap(ctx)
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
	assert.NotNil(t, prices)
	assert.Empty(t, prices)

	assert.ErrorIs(t, g.Apply(ctx, outbox.Operation{Table: domain.TableProducts}), ErrRemoteNotConfigured)
}

func TestNewGateway_RejectsProcedureName(t *testing.T) {
	_, err := NewGateway(GatewayParams{
		Remote: &db.Remote{},
		Config: config.Config{Remote: config.RemoteConfig{PriceProcedure: "prices(); drop table batches"}},
		Log:    zap.NewNop(),
	})
	assert.ErrorIs(t, err, ErrInvalidProcedure)
}

func TestFetchLatestPricesMap_NewestLiveBatchWins(t *testing.T) {
	remote := newRemote(t)
	node := newNode(t)
	productA, productB := node.Generate(), node.Generate()

	batches := []domain.Batch{
		{Envelope: envelope(node.Generate(), 1, testNow), ProductID: productA,
			PurchasePrice: decimal.NewFromInt(5), SellingPrice: decimal.NewFromInt(8), Quantity: decimal.NewFromInt(1)},
		{Envelope: envelope(node.Generate(), 1, testNow.Add(time.Hour)), ProductID: productA,
			PurchasePrice: decimal.NewFromInt(6), SellingPrice: decimal.NewFromInt(9), Quantity: decimal.NewFromInt(1)},
		{Envelope: envelope(node.Generate(), 1, testNow), ProductID: productB,
			PurchasePrice: decimal.NewFromInt(20), SellingPrice: decimal.NewFromInt(30), Quantity: decimal.NewFromInt(1)},
	}
	deleted := domain.Batch{Envelope: envelope(node.Generate(), 2, testNow.Add(2*time.Hour)), ProductID: productB,
		PurchasePrice: decimal.NewFromInt(99), SellingPrice: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(1)}
	deleted.Status = domain.StatusDeleted
	batches = append(batches, deleted)
	for i := range batches {
		require.NoError(t, remote.Create(&batches[i]).Error)
	}

	prices, err := newGateway(t, remote, 10).FetchLatestPricesMap(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.True(t, decimal.NewFromInt(6).Equal(prices[productA].PurchasePrice))
	assert.True(t, decimal.NewFromInt(9).Equal(prices[productA].SellingPrice))
	assert.True(t, decimal.NewFromInt(30).Equal(prices[productB].SellingPrice))
}

func operationFor(t *testing.T, table string, row domain.Entity) outbox.Operation {
	t.Helper()
	payload, err := json.Marshal(row)
	require.NoError(t, err)
	meta := row.Meta()
	return outbox.Operation{
		Table:    table,
		EntityID: meta.ID,
		Version:  meta.Version,
		Payload:  payload,
	}
}

func TestApply_UpsertsOnlyNewerVersions(t *testing.T) {
	remote := newRemote(t)
	node := newNode(t)
	g := newGateway(t, remote, 10)
	ctx := context.Background()

	id := node.Generate()
	v2 := domain.Customer{Envelope: envelope(id, 2, testNow), Name: "Second"}
	v1 := domain.Customer{Envelope: envelope(id, 1, testNow), Name: "First"}

	require.NoError(t, g.Apply(ctx, operationFor(t, domain.TableCustomers, v2)))
	require.NoError(t, g.Apply(ctx, operationFor(t, domain.TableCustomers, v2)))
	require.NoError(t, g.Apply(ctx, operationFor(t, domain.TableCustomers, v1)))

	var got domain.Customer
	require.NoError(t, remote.First(&got, "id = ?", id).Error)
	assert.Equal(t, "Second", got.Name)
	assert.EqualValues(t, 2, got.Version)

	var count int64
	require.NoError(t, remote.Model(&domain.Customer{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	err := g.Apply(ctx, outbox.Operation{Table: "ghosts", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func newStore(t *testing.T, ob *outbox.Service) *service.Store {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := service.New(service.Params{
		Config: config.Config{Ledger: config.LedgerConfig{
			SalesCashPolicy:    string(domain.CashPolicyRecordOnly),
			PurchaseCashPolicy: string(domain.CashPolicyAlwaysDecrement),
		}},
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(testNow),
		Outbox: ob,
	})
	require.NoError(t, err)
	return s
}

type countingFlusher struct{ calls int }

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return nil
}

func newSyncer(t *testing.T, g *Gateway, store *service.Store, ob *outbox.Service, policy string) *Syncer {
	t.Helper()
	return NewSyncer(SyncerParams{
		Gateway: g,
		Store:   store,
		Config:  config.Config{Sync: config.SyncConfig{FailurePolicy: policy}},
		Clock:   clock.NewFakeClock(testNow),
		Log:     zap.NewNop(),
		Outbox:  ob,
	})
}

func TestSyncFromCloud_ReplacesStore(t *testing.T) {
	remote := newRemote(t)
	seeded := seedRemoteCustomers(t, remote, newNode(t), 3)
	store := newStore(t, nil)
	flusher := &countingFlusher{}

	syncer := newSyncer(t, newGateway(t, remote, 2), store, nil, config.SyncPolicyAbort)
	syncer.SetFlusher(flusher)

	report, err := syncer.SyncFromCloud(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Committed)
	assert.Empty(t, report.Failed())
	assert.Len(t, report.Tables, len(domain.Tables))
	assert.Equal(t, 1, flusher.calls)

	got, err := store.Customer(seeded[1].ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(got.CurrentBalance))
	assert.Len(t, store.Customers(), 3)

	status := syncer.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.ActiveOperations)
	require.NotNil(t, status.Last)
	assert.True(t, status.Last.Committed)
}

func TestSyncFromCloud_AbortKeepsLocalData(t *testing.T) {
	remote := newRemote(t)
	seedRemoteCustomers(t, remote, newNode(t), 2)
	require.NoError(t, remote.Migrator().DropTable(&domain.DailyClosing{}))

	store := newStore(t, nil)
	local, err := store.AddCustomer(context.Background(), domain.Customer{Name: "Local"})
	require.NoError(t, err)

	syncer := newSyncer(t, newGateway(t, remote, 10), store, nil, config.SyncPolicyAbort)
	report, err := syncer.SyncFromCloud(context.Background())
	require.ErrorIs(t, err, ErrSyncAborted)
	assert.False(t, report.Committed)
	assert.Equal(t, []string{domain.TableDailyClosings}, report.Failed())

	customers := store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, local.ID, customers[0].ID)
}

func TestSyncFromCloud_SkipReplacesHealthyTables(t *testing.T) {
	remote := newRemote(t)
	seedRemoteCustomers(t, remote, newNode(t), 2)
	require.NoError(t, remote.Migrator().DropTable(&domain.DailyClosing{}))

	store := newStore(t, nil)
	syncer := newSyncer(t, newGateway(t, remote, 10), store, nil, config.SyncPolicySkip)

	report, err := syncer.SyncFromCloud(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Committed)
	assert.Equal(t, []string{domain.TableDailyClosings}, report.Failed())
	assert.Len(t, store.Customers(), 2)
}

func TestSyncFromCloud_KeepsRowsWithPendingOperations(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)

	ob, err := outbox.NewService(outbox.Params{DB: dbtest.OpenLocal(t), Log: zap.NewNop(), Clock: clock.NewFakeClock(testNow)})
	require.NoError(t, err)
	store := newStore(t, ob)

	local, err := store.AddCustomer(ctx, domain.Customer{Name: "Edited offline"})
	require.NoError(t, err)

	newer := domain.Customer{Envelope: envelope(local.ID, 5, testNow), Name: "Remote copy"}
	require.NoError(t, remote.Create(&newer).Error)

	syncer := newSyncer(t, newGateway(t, remote, 10), store, ob, config.SyncPolicyAbort)
	report, err := syncer.SyncFromCloud(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.KeptLocal)

	got, err := store.Customer(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited offline", got.Name)

	// once the queue drains, the remote version wins
	ops, err := ob.Pending(ctx, 10)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, ob.MarkDispatched(ctx, op.ID))
	}

	_, err = syncer.SyncFromCloud(ctx)
	require.NoError(t, err)
	got, err = store.Customer(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Remote copy", got.Name)
}

func TestSyncFromCloud_DropsRowsDeletedRemotely(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	seeded := seedRemoteCustomers(t, remote, newNode(t), 2)
	store := newStore(t, nil)
	syncer := newSyncer(t, newGateway(t, remote, 10), store, nil, config.SyncPolicyAbort)

	_, err := syncer.SyncFromCloud(ctx)
	require.NoError(t, err)
	require.Len(t, store.Customers(), 2)

	require.NoError(t, remote.Delete(&domain.Customer{}, seeded[0].ID).Error)

	report, err := syncer.SyncFromCloud(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.KeptLocal)

	customers := store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, seeded[1].ID, customers[0].ID)
	_, err = store.Customer(seeded[0].ID)
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestSyncFromCloud_RejectsOverlappingRuns(t *testing.T) {
	remote := newRemote(t)
	syncer := newSyncer(t, newGateway(t, remote, 10), newStore(t, nil), nil, config.SyncPolicyAbort)

	syncer.running.Store(true)
	_, err := syncer.SyncFromCloud(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestSyncFromCloud_NoRemote(t *testing.T) {
	syncer := newSyncer(t, newGateway(t, &db.Remote{}, 10), newStore(t, nil), nil, config.SyncPolicyAbort)
	_, err := syncer.SyncFromCloud(context.Background())
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
}
