package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/bootstrap"
	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/smallbiznis/storeledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Named("http"), classifyErrorForLog))
	r.Use(Tracing())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	store     *service.Store
	catalog   *catalog.Engine
	syncer    *cloudsync.Syncer
	authz     *authorization.Service
	settings  *config.SettingsHolder
	persister *persistence.Persister
	limiter   *ratelimit.RemoteLimiter
	startup   *bootstrap.Runner
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Store     *service.Store
	Catalog   *catalog.Engine
	Syncer    *cloudsync.Syncer
	Authz     *authorization.Service
	Settings  *config.SettingsHolder   `optional:"true"`
	Persister *persistence.Persister   `optional:"true"`
	Limiter   *ratelimit.RemoteLimiter `optional:"true"`
	Startup   *bootstrap.Runner        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		store:     p.Store,
		catalog:   p.Catalog,
		syncer:    p.Syncer,
		authz:     p.Authz,
		settings:  p.Settings,
		persister: p.Persister,
		limiter:   p.Limiter,
		startup:   p.Startup,
	}

	svc.registerLedgerRoutes()
	svc.registerCatalogRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerLedgerRoutes() {
	v1 := s.engine.Group("/v1")
	authz := s.authz.Middleware

	// -------- Inventory --------
	v1.GET("/products", authz(authorization.ObjectProduct, authorization.ActionView), s.ListProducts)
	v1.POST("/products", authz(authorization.ObjectProduct, authorization.ActionCreate), s.CreateProduct)
	v1.GET("/products/:id", authz(authorization.ObjectProduct, authorization.ActionView), s.GetProductByID)
	v1.PUT("/products/:id", authz(authorization.ObjectProduct, authorization.ActionUpdate), s.UpdateProduct)
	v1.DELETE("/products/:id", authz(authorization.ObjectProduct, authorization.ActionDelete), s.DeleteProduct)
	v1.GET("/products/:id/stock", authz(authorization.ObjectBatch, authorization.ActionView), s.GetProductStock)

	v1.GET("/batches", authz(authorization.ObjectBatch, authorization.ActionView), s.ListBatches)
	v1.POST("/batches", authz(authorization.ObjectBatch, authorization.ActionCreate), s.CreateBatch)

	v1.GET("/adjustments", authz(authorization.ObjectAdjustment, authorization.ActionView), s.ListAdjustments)
	v1.POST("/adjustments", authz(authorization.ObjectAdjustment, authorization.ActionCreate), s.CreateAdjustment)
	v1.POST("/adjustments/:id/approve", authz(authorization.ObjectAdjustment, authorization.ActionApprove), s.ApproveAdjustment)
	v1.POST("/adjustments/:id/reject", authz(authorization.ObjectAdjustment, authorization.ActionApprove), s.RejectAdjustment)

	v1.GET("/warehouses", authz(authorization.ObjectWarehouse, authorization.ActionView), s.ListWarehouses)
	v1.POST("/warehouses", authz(authorization.ObjectWarehouse, authorization.ActionCreate), s.CreateWarehouse)

	// -------- Counterparts --------
	v1.GET("/customers", authz(authorization.ObjectCustomer, authorization.ActionView), s.ListCustomers)
	v1.POST("/customers", authz(authorization.ObjectCustomer, authorization.ActionCreate), s.CreateCustomer)
	v1.GET("/customers/:id", authz(authorization.ObjectCustomer, authorization.ActionView), s.GetCustomerByID)
	v1.PUT("/customers/:id", authz(authorization.ObjectCustomer, authorization.ActionUpdate), s.UpdateCustomer)
	v1.DELETE("/customers/:id", authz(authorization.ObjectCustomer, authorization.ActionDelete), s.DeleteCustomer)
	v1.GET("/customers/:id/invoices", authz(authorization.ObjectInvoice, authorization.ActionView), s.ListCustomerInvoices)

	v1.GET("/suppliers", authz(authorization.ObjectSupplier, authorization.ActionView), s.ListSuppliers)
	v1.POST("/suppliers", authz(authorization.ObjectSupplier, authorization.ActionCreate), s.CreateSupplier)
	v1.GET("/suppliers/:id", authz(authorization.ObjectSupplier, authorization.ActionView), s.GetSupplierByID)
	v1.PUT("/suppliers/:id", authz(authorization.ObjectSupplier, authorization.ActionUpdate), s.UpdateSupplier)
	v1.DELETE("/suppliers/:id", authz(authorization.ObjectSupplier, authorization.ActionDelete), s.DeleteSupplier)

	v1.GET("/representatives", authz(authorization.ObjectRepresentative, authorization.ActionView), s.ListRepresentatives)
	v1.POST("/representatives", authz(authorization.ObjectRepresentative, authorization.ActionCreate), s.CreateRepresentative)

	// -------- Sales --------
	v1.GET("/invoices", authz(authorization.ObjectInvoice, authorization.ActionView), s.ListInvoices)
	v1.POST("/invoices", authz(authorization.ObjectInvoice, authorization.ActionCreate), s.CreateInvoice)
	v1.GET("/invoices/:id", authz(authorization.ObjectInvoice, authorization.ActionView), s.GetInvoiceByID)
	v1.PUT("/invoices/:id", authz(authorization.ObjectInvoice, authorization.ActionUpdate), s.UpdateInvoice)
	v1.DELETE("/invoices/:id", authz(authorization.ObjectInvoice, authorization.ActionDelete), s.DeleteInvoice)
	v1.POST("/invoices/:id/payments", authz(authorization.ObjectInvoice, authorization.ActionPay), s.PayInvoice)

	// -------- Purchases --------
	v1.GET("/purchase-invoices", authz(authorization.ObjectPurchaseInvoice, authorization.ActionView), s.ListPurchaseInvoices)
	v1.POST("/purchase-invoices", authz(authorization.ObjectPurchaseInvoice, authorization.ActionCreate), s.CreatePurchaseInvoice)
	v1.GET("/purchase-invoices/:id", authz(authorization.ObjectPurchaseInvoice, authorization.ActionView), s.GetPurchaseInvoiceByID)
	v1.DELETE("/purchase-invoices/:id", authz(authorization.ObjectPurchaseInvoice, authorization.ActionDelete), s.DeletePurchaseInvoice)
	v1.POST("/purchase-invoices/:id/payments", authz(authorization.ObjectPurchaseInvoice, authorization.ActionPay), s.PayPurchaseInvoice)

	v1.GET("/purchase-orders", authz(authorization.ObjectPurchaseOrder, authorization.ActionView), s.ListPurchaseOrders)
	v1.POST("/purchase-orders", authz(authorization.ObjectPurchaseOrder, authorization.ActionCreate), s.CreatePurchaseOrder)
	v1.POST("/purchase-orders/:id/state", authz(authorization.ObjectPurchaseOrder, authorization.ActionUpdate), s.SetPurchaseOrderState)

	// -------- Cash --------
	v1.GET("/cash", authz(authorization.ObjectCash, authorization.ActionView), s.ListCashTransactions)
	v1.POST("/cash", authz(authorization.ObjectCash, authorization.ActionCreate), s.CreateCashTransaction)
	v1.POST("/cash/:id/cancel", authz(authorization.ObjectCash, authorization.ActionCancel), s.CancelCashTransaction)

	v1.GET("/daily-closings", authz(authorization.ObjectDailyClosing, authorization.ActionView), s.ListDailyClosings)
	v1.POST("/daily-closings", authz(authorization.ObjectDailyClosing, authorization.ActionCreate), s.SaveDailyClosing)
}

func (s *Server) registerCatalogRoutes() {
	v1 := s.engine.Group("/v1")
	authz := s.authz.Middleware

	v1.GET("/catalog", authz(authorization.ObjectCatalog, authorization.ActionView), s.GetCatalog)
	v1.POST("/catalog/reload", authz(authorization.ObjectCatalog, authorization.ActionRun), s.throttle("catalog_reload"), s.ReloadCatalog)

	search := v1.Group("/search")
	{
		search.GET("/products", authz(authorization.ObjectProduct, authorization.ActionView), s.SearchProducts)
		search.GET("/customers", authz(authorization.ObjectCustomer, authorization.ActionView), s.SearchCustomers)
		search.GET("/suppliers", authz(authorization.ObjectSupplier, authorization.ActionView), s.SearchSuppliers)
	}
}

func (s *Server) registerAdminRoutes() {
	v1 := s.engine.Group("/v1")
	authz := s.authz.Middleware

	v1.GET("/sync", authz(authorization.ObjectSync, authorization.ActionView), s.GetSyncStatus)
	v1.POST("/sync", authz(authorization.ObjectSync, authorization.ActionRun), s.throttle("sync"), s.RunSync)

	v1.GET("/backup", authz(authorization.ObjectBackup, authorization.ActionExport), s.ExportBackup)
	v1.POST("/backup", authz(authorization.ObjectBackup, authorization.ActionImport), s.ImportBackup)

	v1.GET("/settings", authz(authorization.ObjectSettings, authorization.ActionView), s.GetSettings)
	v1.PUT("/settings", authz(authorization.ObjectSettings, authorization.ActionUpdate), s.UpdateSettings)
}
