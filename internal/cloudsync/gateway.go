package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/option"
	"github.com/smallbiznis/storeledger/pkg/db/pagination"
	"github.com/smallbiznis/storeledger/pkg/repository"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 1000

	remoteOrder = "created_at desc, id desc"
)

var (
	ErrRemoteNotConfigured = errors.New("remote_backend_not_configured")
	ErrUnknownTable        = errors.New("unknown_remote_table")
	ErrInvalidProcedure    = errors.New("invalid_price_procedure_name")
)

var procedureName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// latestPricesQuery picks the newest live batch per product. It runs on
// postgres, mysql 8 and sqlite alike.
const latestPricesQuery = `
SELECT product_id, purchase_price, selling_price
FROM (
	SELECT product_id, purchase_price, selling_price,
		ROW_NUMBER() OVER (PARTITION BY product_id ORDER BY created_at DESC, id DESC) AS rn
	FROM batches
	WHERE status NOT IN ('DELETED', 'CANCELLED')
) latest
WHERE rn = 1`

type GatewayParams struct {
	fx.In

	Remote  *db.Remote
	Config  config.Config
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

// Gateway reads the remote tables page by page and replays outbox operations
// against them. A Gateway over an unconfigured remote is valid; every call
// then fails with ErrRemoteNotConfigured.
type Gateway struct {
	remote         *db.Remote
	log            *zap.Logger
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	pageSize       int
	priceProcedure string

	active atomic.Int64
}

func NewGateway(p GatewayParams) (*Gateway, error) {
	procedure := p.Config.Remote.PriceProcedure
	if procedure != "" && !procedureName.MatchString(procedure) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProcedure, procedure)
	}

	pageSize := p.Config.Sync.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Gateway{
		remote:         p.Remote,
		log:            p.Log.Named("cloudsync.gateway"),
		metrics:        p.Metrics,
		tracer:         otel.Tracer("storeledger/cloudsync"),
		pageSize:       pageSize,
		priceProcedure: procedure,
	}, nil
}

func (g *Gateway) Enabled() bool {
	return g != nil && g.remote.Configured()
}

// ActiveOperations counts remote reads currently in flight.
func (g *Gateway) ActiveOperations() int64 {
	return g.active.Load()
}

func (g *Gateway) track() func() {
	g.metrics.SetActiveOperations(g.active.Add(1))
	return func() {
		g.metrics.SetActiveOperations(g.active.Add(-1))
	}
}

// FetchTable reads every row of table into T. On failure it returns the rows
// read so far together with an error naming the table and the page.
func FetchTable[T any](ctx context.Context, g *Gateway, table string) ([]T, error) {
	if !g.Enabled() {
		return nil, ErrRemoteNotConfigured
	}
	defer g.track()()

	ctx, span := g.tracer.Start(ctx, "cloudsync.FetchTable", trace.WithAttributes(attribute.String("table", table)))
	defer span.End()

	repo := repository.ProvideStore[T](g.remote.DB)
	fromTable := option.QueryOptionFunc(func(tx *gorm.DB) *gorm.DB { return tx.Table(table) })

	rows, err := pagination.Walk(g.pageSize, func(page pagination.Page) ([]T, error) {
		found, err := repo.Find(ctx, nil, fromTable, option.OrderBy(remoteOrder), option.ApplyPagination(page))
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", table, page.Number, err)
		}
		out := make([]T, 0, len(found))
		for _, row := range found {
			out = append(out, *row)
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, err
}

// FetchAllFromTable is the untyped variant of FetchTable, limited to the
// synchronised tables.
func (g *Gateway) FetchAllFromTable(ctx context.Context, table string) ([]map[string]any, error) {
	if !g.Enabled() {
		return nil, ErrRemoteNotConfigured
	}
	if _, ok := registry[table]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	defer g.track()()

	return pagination.Walk(g.pageSize, func(page pagination.Page) ([]map[string]any, error) {
		var rows []map[string]any
		err := option.ApplyPagination(page).
			Apply(g.remote.WithContext(ctx).Table(table).Order(remoteOrder)).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", table, page.Number, err)
		}
		return rows, nil
	})
}

type priceRow struct {
	ProductID     int64
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
}

// FetchLatestPricesMap returns the newest batch prices per product in one
// aggregate query.
func (g *Gateway) FetchLatestPricesMap(ctx context.Context) (map[snowflake.ID]domain.PriceOverride, error) {
	out := make(map[snowflake.ID]domain.PriceOverride)
	if !g.Enabled() {
		return out, ErrRemoteNotConfigured
	}
	defer g.track()()

	ctx, span := g.tracer.Start(ctx, "cloudsync.FetchLatestPricesMap")
	defer span.End()

	query := latestPricesQuery
	if g.priceProcedure != "" {
		query = fmt.Sprintf("SELECT product_id, purchase_price, selling_price FROM %s()", g.priceProcedure)
	}

	var rows []priceRow
	if err := g.remote.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("fetch latest prices: %w", err)
	}

	for _, row := range rows {
		id := snowflake.ID(row.ProductID)
		out[id] = domain.PriceOverride{
			ProductID:     id,
			PurchasePrice: row.PurchasePrice,
			SellingPrice:  row.SellingPrice,
		}
	}
	span.SetAttributes(attribute.Int("products", len(out)))
	return out, nil
}
