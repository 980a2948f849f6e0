package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"github.com/smallbiznis/storeledger/internal/search"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

var Module = fx.Module("catalog",
	fx.Provide(NewEngine),
)

type Params struct {
	fx.In

	Gateway   *cloudsync.Gateway
	Store     *service.Store
	Clock     clock.Clock
	Log       *zap.Logger
	Outbox    *outbox.Service        `optional:"true"`
	Persister *persistence.Persister `optional:"true"`
	Metrics   *telemetry.Metrics     `optional:"true"`
}

// Engine reconciles remote products and batches with the latest transactional
// prices and publishes the result. It loads once per process unless reloaded.
type Engine struct {
	gateway *cloudsync.Gateway
	store   *service.Store
	outbox  *outbox.Service
	flusher cloudsync.Flusher
	clock   clock.Clock
	log     *zap.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	mu     sync.Mutex
	loaded bool
	state  atomic.Value
}

func NewEngine(p Params) *Engine {
	e := &Engine{
		gateway: p.Gateway,
		store:   p.Store,
		outbox:  p.Outbox,
		clock:   p.Clock,
		log:     p.Log.Named("catalog.engine"),
		metrics: p.Metrics,
		tracer:  otel.Tracer("storeledger/catalog"),
	}
	if p.Persister != nil {
		e.flusher = p.Persister
	}
	return e
}

func (e *Engine) SetFlusher(f cloudsync.Flusher) {
	e.flusher = f
}

// State returns the last published catalog, or nil before the first load.
func (e *Engine) State() *State {
	s, _ := e.state.Load().(*State)
	return s
}

// Loaded reports whether a catalog was published in this process.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) Load(ctx context.Context) (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.State(); e.loaded && s != nil && s.Source == SourceRemote {
		return s, nil
	}
	return e.load(ctx)
}

func (e *Engine) Reload(ctx context.Context) (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx)
}

// Search ranks the published catalog, falling back to the store's own
// products when nothing was published yet.
func (e *Engine) Search(query string, limit int) []Item {
	state := e.State()
	if state == nil {
		state = e.localState()
	}
	return search.Search(query, state.Items, limit)
}

func (e *Engine) localState() *State {
	return &State{
		Items:    Merge(e.store.Products(), e.store.Batches(0, 0), nil),
		Source:   SourceLocal,
		LoadedAt: e.clock.Now(),
	}
}

func (e *Engine) load(ctx context.Context) (state *State, err error) {
	if !e.gateway.Enabled() {
		state = e.localState()
		e.publish(state)
		e.log.Info("catalog built from local store", zap.Int("products", len(state.Items)))
		return state, nil
	}

	ctx, span := e.tracer.Start(ctx, "catalog.Load")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var (
		products  []domain.Product
		batches   []domain.Batch
		overrides map[snowflake.ID]domain.PriceOverride
		priceErr  error
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rows, err := cloudsync.FetchTable[domain.Product](gctx, e.gateway, domain.TableProducts)
		products = rows
		return err
	})
	eg.Go(func() error {
		rows, err := cloudsync.FetchTable[domain.Batch](gctx, e.gateway, domain.TableBatches)
		batches = rows
		return err
	})
	eg.Go(func() error {
		overrides, priceErr = e.gateway.FetchLatestPricesMap(gctx)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	degraded := false
	if priceErr != nil {
		e.log.Warn("latest prices unavailable, using product prices", zap.Error(priceErr))
		overrides = nil
		degraded = true
	}

	state = &State{
		Items:     Merge(products, batches, overrides),
		Overrides: len(overrides),
		Degraded:  degraded,
		Source:    SourceRemote,
		LoadedAt:  e.clock.Now(),
	}

	keep, err := e.outbox.DirtyFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending outbox entities: %w", err)
	}
	kept := e.store.ReplaceCatalog(ctx, products, batches, keep)

	if e.flusher != nil {
		if flushErr := e.flusher.Flush(ctx); flushErr != nil {
			e.log.Warn("cache flush after catalog load failed", zap.Error(flushErr))
		}
	}

	e.publish(state)
	span.SetAttributes(
		attribute.Int("products", len(state.Items)),
		attribute.Int("overrides", state.Overrides),
	)
	e.log.Info("catalog reconciled",
		zap.Int("products", len(state.Items)),
		zap.Int("batches", len(batches)),
		zap.Int("overrides", state.Overrides),
		zap.Int("kept_local", kept),
		zap.Bool("degraded", degraded),
	)
	return state, nil
}

func (e *Engine) publish(state *State) {
	e.state.Store(state)
	e.loaded = true
	e.metrics.ObserveCatalog(len(state.Items), state.Overrides)
}
