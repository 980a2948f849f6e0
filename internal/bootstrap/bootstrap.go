package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/smallbiznis/storeledger/internal/catalog"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/persistence"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("bootstrap",
	fx.Provide(NewRunner),
	fx.Invoke(register),
)

type CacheLoader interface {
	Load(ctx context.Context) (persistence.LoadResult, error)
}

type Syncer interface {
	Enabled() bool
	SyncFromCloud(ctx context.Context) (cloudsync.SyncReport, error)
}

type Reconciler interface {
	Load(ctx context.Context) (*catalog.State, error)
}

type Ledger interface {
	Empty() bool
}

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Store      *service.Store
	Persister  *persistence.Persister
	Syncer     *cloudsync.Syncer
	Reconciler *catalog.Engine
}

// Result records what startup did. Every step is best effort: a failing step
// is logged and the process keeps serving from whatever the store holds.
type Result struct {
	Cache        persistence.LoadResult
	CacheErr     error
	Synced       bool
	SyncErr      error
	Reconciled   bool
	ReconcileErr error
}

// Summary is the JSON view of the last startup run.
type Summary struct {
	Done           bool   `json:"done"`
	Restored       bool   `json:"restored"`
	CacheRows      int    `json:"cache_rows"`
	CacheError     string `json:"cache_error,omitempty"`
	Synced         bool   `json:"synced"`
	SyncError      string `json:"sync_error,omitempty"`
	Reconciled     bool   `json:"reconciled"`
	ReconcileError string `json:"reconcile_error,omitempty"`
}

func (r Result) Summary() Summary {
	return Summary{
		Done:           true,
		Restored:       r.Cache.Restored,
		CacheRows:      r.Cache.Rows,
		CacheError:     errText(r.CacheErr),
		Synced:         r.Synced,
		SyncError:      errText(r.SyncErr),
		Reconciled:     r.Reconciled,
		ReconcileError: errText(r.ReconcileErr),
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type Runner struct {
	cache            CacheLoader
	ledger           Ledger
	syncer           Syncer
	reconciler       Reconciler
	reconcileOnStart bool
	log              *zap.Logger

	mu   sync.Mutex
	last *Result
}

func NewRunner(p Params) *Runner {
	return New(p.Persister, p.Store, p.Syncer, p.Reconciler, p.Config.Sync.ReconcileOnStart, p.Log)
}

func New(cache CacheLoader, ledger Ledger, syncer Syncer, reconciler Reconciler, reconcileOnStart bool, log *zap.Logger) *Runner {
	return &Runner{
		cache:            cache,
		ledger:           ledger,
		syncer:           syncer,
		reconciler:       reconciler,
		reconcileOnStart: reconcileOnStart,
		log:              log.Named("bootstrap"),
	}
}

// Restore fills the store from the local cache.
func (r *Runner) Restore(ctx context.Context, res *Result) {
	loaded, err := r.cache.Load(ctx)
	res.Cache = loaded
	if err != nil {
		res.CacheErr = err
		r.log.Warn("local cache unreadable, starting empty", zap.Error(err))
		return
	}
	r.log.Info("local cache loaded",
		zap.Bool("restored", loaded.Restored),
		zap.Bool("purged", loaded.Purged),
		zap.Bool("migrated", loaded.Migrated),
		zap.Int("rows", loaded.Rows),
	)
}

// Warm pulls the remote backend into an empty store and, when asked to,
// reconciles the catalog once.
func (r *Runner) Warm(ctx context.Context, res *Result) {
	if r.ledger.Empty() && r.syncer.Enabled() {
		_, err := r.syncer.SyncFromCloud(ctx)
		switch {
		case err == nil:
			res.Synced = true
		case errors.Is(err, cloudsync.ErrSyncInProgress):
			r.log.Info("initial sync already running elsewhere")
		default:
			res.SyncErr = err
			r.log.Warn("initial sync failed", zap.Error(err))
		}
	}

	if r.reconcileOnStart {
		if _, err := r.reconciler.Load(ctx); err != nil {
			res.ReconcileErr = err
			r.log.Warn("catalog reconciliation on start failed", zap.Error(err))
			return
		}
		res.Reconciled = true
	}
}

func (r *Runner) Run(ctx context.Context) Result {
	var res Result
	r.Restore(ctx, &res)
	r.Warm(ctx, &res)
	r.finish(res)
	return res
}

func (r *Runner) finish(res Result) {
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()

	r.log.Info("startup finished",
		zap.Bool("restored", res.Cache.Restored),
		zap.Bool("synced", res.Synced),
		zap.Bool("reconciled", res.Reconciled),
		zap.NamedError("sync_error", res.SyncErr),
		zap.NamedError("reconcile_error", res.ReconcileErr),
	)
}

// Status reports the last finished startup run. Done is false while the
// background warm-up is still going.
func (r *Runner) Status() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Summary{}
	}
	return r.last.Summary()
}

func register(lc fx.Lifecycle, r *Runner) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var res Result
			r.Restore(ctx, &res)

			var warmCtx context.Context
			warmCtx, cancel = context.WithCancel(context.Background())
			go func() {
				r.Warm(warmCtx, &res)
				r.finish(res)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
