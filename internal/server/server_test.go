package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/bootstrap"
	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors"`
}

type testServer struct {
	*Server
	store *service.Store
}

func newTestServer(t *testing.T, roles map[string]string) *testServer {
	t.Helper()

	cfg := config.Config{
		Ledger: config.LedgerConfig{
			SalesCashPolicy:    string(domain.CashPolicyRecordOnly),
			PurchaseCashPolicy: string(domain.CashPolicyAlwaysDecrement),
		},
		ActorRoles: roles,
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	settings := config.NewStaticSettingsHolder(config.DefaultSettings())

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	store, err := service.New(service.Params{Config: cfg, Log: log, GenID: node, Clock: clk, Settings: settings})
	require.NoError(t, err)

	gateway, err := cloudsync.NewGateway(cloudsync.GatewayParams{Remote: &db.Remote{}, Config: cfg, Log: log})
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(dbtest.OpenLocal(t))
	require.NoError(t, err)
	authz, err := authorization.NewService(authorization.Params{Config: cfg, Log: log, Enforcer: enforcer})
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:      NewEngine(log),
		Cfg:      cfg,
		Log:      log,
		Store:    store,
		Catalog:  catalog.NewEngine(catalog.Params{Gateway: gateway, Store: store, Clock: clk, Log: log}),
		Syncer:   cloudsync.NewSyncer(cloudsync.SyncerParams{Gateway: gateway, Store: store, Config: cfg, Clock: clk, Log: log}),
		Authz:    authz,
		Settings: settings,
	})
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actor string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(authorization.HeaderActor, actor)
	}
	w := httptest.NewRecorder()
	ts.Engine().ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w, _ := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestProducts_CreateGetAndEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodPost, "/v1/products", gin.H{"name": "Panadol Extra", "code": "PX-1", "selling_price": "12.5"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)
	created := decodeData[domain.Product](t, env)
	assert.Equal(t, "Panadol Extra", created.Name)
	assert.True(t, created.SellingPrice.Decimal.Equal(decimal.RequireFromString("12.5")))

	w, env = ts.do(t, http.MethodGet, "/v1/products/"+created.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeData[domain.Product](t, env).ID)

	w, env = ts.do(t, http.MethodGet, "/v1/search/products?q=px-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]domain.Product](t, env), 1)
}

func TestErrors_NotFoundAndValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodGet, "/v1/customers/12345", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Type)
	assert.Equal(t, domain.ErrCustomerNotFound.Error(), env.Message)

	w, env = ts.do(t, http.MethodGet, "/v1/products/not-an-id", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "invalid_id", env.Errors[0].Code)

	w, env = ts.do(t, http.MethodPost, "/v1/invoices", gin.H{"customer_id": "1", "items": []any{}}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", env.Type)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "items", env.Errors[0].Field)

	w, env = ts.do(t, http.MethodPost, "/v1/customers", gin.H{"name": "  "}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", env.Type)
}

func TestInvoice_FlowThroughHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	_, env := ts.do(t, http.MethodPost, "/v1/customers", gin.H{"name": "Mona", "opening_balance": "100"}, "")
	customer := decodeData[domain.Customer](t, env)
	_, env = ts.do(t, http.MethodPost, "/v1/products", gin.H{"name": "Brufen", "code": "BR-4"}, "")
	product := decodeData[domain.Product](t, env)
	_, env = ts.do(t, http.MethodPost, "/v1/batches", gin.H{
		"product_id": product.ID, "batch_number": "L1", "purchase_price": "3", "selling_price": "5", "quantity": "10",
	}, "")
	batch := decodeData[domain.Batch](t, env)

	w, env := ts.do(t, http.MethodPost, "/v1/invoices", gin.H{
		"customer_id":  customer.ID,
		"cash_payment": "4",
		"items": []gin.H{
			{"product_id": product.ID, "batch_id": batch.ID, "quantity": "2", "unit_price": "5"},
		},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	invoice := decodeData[domain.Invoice](t, env)
	assert.True(t, invoice.FinalBalance.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, authorization.LocalActor, invoice.CreatedBy)

	_, env = ts.do(t, http.MethodGet, "/v1/invoices/"+invoice.ID.String(), nil, "")
	view := decodeData[invoiceView](t, env)
	assert.True(t, view.PaidAmount.Equal(decimal.NewFromInt(4)))

	_, env = ts.do(t, http.MethodGet, "/v1/products/"+product.ID.String()+"/stock", nil, "")
	stock := decodeData[stockResponse](t, env)
	assert.True(t, stock.Available.Equal(decimal.NewFromInt(8)))

	_, env = ts.do(t, http.MethodGet, "/v1/cash", nil, "")
	cash := decodeData[cashListResponse](t, env)
	assert.True(t, cash.Balance.Equal(decimal.NewFromInt(4)))
	assert.Len(t, cash.Transactions, 1)

	w, _ = ts.do(t, http.MethodDelete, "/v1/invoices/"+invoice.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got, err := ts.store.Customer(customer.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(100)))
}

func TestAuthorization_Guards(t *testing.T) {
	ts := newTestServer(t, map[string]string{"bob": authorization.RoleCashier, "carol": authorization.RoleViewer})

	w, env := ts.do(t, http.MethodDelete, "/v1/products/12345", nil, "bob")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", env.Type)

	w, env = ts.do(t, http.MethodGet, "/v1/products", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", env.Type)

	w, _ = ts.do(t, http.MethodPost, "/v1/customers", gin.H{"name": "Walk-in"}, "carol")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = ts.do(t, http.MethodPost, "/v1/customers", gin.H{"name": "Walk-in"}, "bob")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	w, _ = ts.do(t, http.MethodGet, "/v1/customers", nil, "carol")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSync_WithoutRemote(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodPost, "/v1/sync", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, cloudsync.ErrRemoteNotConfigured.Error(), env.Message)

	w, env = ts.do(t, http.MethodGet, "/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeData[syncStatusResponse](t, env)
	assert.False(t, status.RemoteEnabled)
	assert.False(t, status.Running)
	assert.False(t, status.Startup.Done)
}

func TestSyncStatus_IncludesStartupSummary(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.startup = bootstrap.New(startupCache{}, ts.store, ts.syncer, ts.catalog, false, zap.NewNop())
	ts.startup.Run(context.Background())

	w, env := ts.do(t, http.MethodGet, "/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeData[syncStatusResponse](t, env)
	assert.True(t, status.Startup.Done)
	assert.True(t, status.Startup.Restored)
	assert.False(t, status.Startup.Synced)
	assert.Empty(t, status.Startup.SyncError)
}

type startupCache struct{}

func (startupCache) Load(context.Context) (persistence.LoadResult, error) {
	return persistence.LoadResult{Restored: true}, nil
}

func TestCatalog_LocalOnly(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodPost, "/v1/products", gin.H{"name": "Cataflam", "code": "CF-50", "selling_price": "30"}, "")
	ts.do(t, http.MethodPost, "/v1/products", gin.H{"name": "Vitamin C", "code": "VC-1"}, "")

	w, env := ts.do(t, http.MethodGet, "/v1/catalog", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeData[catalog.State](t, env)
	assert.Equal(t, catalog.SourceLocal, state.Source)
	assert.Len(t, state.Items, 2)

	w, env = ts.do(t, http.MethodGet, "/v1/catalog?q=cf-50", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeData[[]catalog.Item](t, env)
	require.Len(t, items, 1)
	assert.Equal(t, catalog.PriceSourceProduct, items[0].PriceSource)

	w, _ = ts.do(t, http.MethodGet, "/v1/catalog?q=cf&limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackup_ExportImportRoundTrip(t *testing.T) {
	source := newTestServer(t, nil)
	source.do(t, http.MethodPost, "/v1/customers", gin.H{"name": "Hany", "opening_balance": "50"}, "")
	source.do(t, http.MethodPost, "/v1/products", gin.H{"name": "Otrivin", "code": "OT-1"}, "")

	w, _ := source.do(t, http.MethodGet, "/v1/backup", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "storeledger-")
	var doc domain.ExportDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, domain.BackupFormat, doc.Format)

	target := newTestServer(t, nil)
	w, _ = target.do(t, http.MethodPost, "/v1/backup", doc, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Len(t, target.store.Customers(), 1)
	assert.Len(t, target.store.Products(), 1)
	assert.Equal(t, source.store.Export().Data.Len(), target.store.Export().Data.Len())

	w, env := target.do(t, http.MethodPost, "/v1/backup", gin.H{"format": "something-else"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", env.Type)
}

func TestSettings_Update(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(t, http.MethodPut, "/v1/settings", gin.H{"currency": ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", env.Type)

	w, _ = ts.do(t, http.MethodPut, "/v1/settings", gin.H{"currency": "USD", "lowStockThreshold": 2}, "")
	require.Equal(t, http.StatusOK, w.Code)

	_, env = ts.do(t, http.MethodGet, "/v1/settings", nil, "")
	settings := decodeData[config.Settings](t, env)
	assert.Equal(t, "USD", settings.Currency)
	assert.Equal(t, 2, settings.LowStockThreshold)
	assert.Equal(t, config.DefaultSettings().CompanyName, settings.CompanyName)
}

func TestMapError_Statuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{domain.ErrProductNotFound, http.StatusNotFound, "not_found"},
		{cloudsync.ErrSyncInProgress, http.StatusConflict, "conflict"},
		{domain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{ErrInternal, http.StatusInternalServerError, "internal_error"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typ, payload.Type, tc.err.Error())
	}
}
