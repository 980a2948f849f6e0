package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/internal/lock"
	"github.com/smallbiznis/storeledger/internal/outbox"
	"github.com/smallbiznis/storeledger/internal/persistence"
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
	syncLockKey      = "storeledger:sync"
	fetchConcurrency = 6
)

var (
	ErrSyncInProgress = errors.New("sync_in_progress")
	ErrSyncAborted    = errors.New("sync_aborted")
)

// TableResult is the outcome of fetching one remote table.
type TableResult struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`

	err error
}

type SyncReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Policy     string        `json:"policy"`
	Tables     []TableResult `json:"tables"`
	Committed  bool          `json:"committed"`
	KeptLocal  int           `json:"kept_local"`
}

func (r SyncReport) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.err != nil || t.Error != "" {
			out = append(out, t.Table)
		}
	}
	return out
}

func (r SyncReport) Succeeded() []string {
	var out []string
	for _, t := range r.Tables {
		if t.err == nil && t.Error == "" {
			out = append(out, t.Table)
		}
	}
	return out
}

// Flusher forces a write of the local cache.
type Flusher interface {
	Flush(ctx context.Context) error
}

type SyncerParams struct {
	fx.In

	Gateway   *Gateway
	Store     *service.Store
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
	Outbox    *outbox.Service        `optional:"true"`
	Locker    *lock.Locker           `optional:"true"`
	Persister *persistence.Persister `optional:"true"`
	Metrics   *telemetry.Metrics     `optional:"true"`
}

// Syncer pulls the whole remote backend into the ledger store.
type Syncer struct {
	gateway *Gateway
	store   *service.Store
	outbox  *outbox.Service
	locker  *lock.Locker
	flusher Flusher
	clock   clock.Clock
	log     *zap.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	policy  string
	lockTTL time.Duration

	running atomic.Bool

	mu   sync.Mutex
	last *SyncReport
}

func NewSyncer(p SyncerParams) *Syncer {
	s := &Syncer{
		gateway: p.Gateway,
		store:   p.Store,
		outbox:  p.Outbox,
		locker:  p.Locker,
		clock:   p.Clock,
		log:     p.Log.Named("cloudsync.syncer"),
		metrics: p.Metrics,
		tracer:  otel.Tracer("storeledger/cloudsync"),
		policy:  p.Config.Sync.FailurePolicy,
		lockTTL: p.Config.Sync.LockTTL,
	}
	if p.Persister != nil {
		s.flusher = p.Persister
	}
	if s.policy == "" {
		s.policy = config.SyncPolicyAbort
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * time.Minute
	}
	return s
}

// SetFlusher replaces the cache flusher used after a committed sync.
func (s *Syncer) SetFlusher(f Flusher) {
	s.flusher = f
}

// Enabled reports whether a remote backend is configured.
func (s *Syncer) Enabled() bool {
	return s.gateway.Enabled()
}

// Status is what the UI shows next to the "syncing" indicator.
type Status struct {
	Running          bool        `json:"running"`
	ActiveOperations int64       `json:"active_operations"`
	RemoteEnabled    bool        `json:"remote_enabled"`
	Last             *SyncReport `json:"last,omitempty"`
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:          s.running.Load(),
		ActiveOperations: s.gateway.ActiveOperations(),
		RemoteEnabled:    s.gateway.Enabled(),
		Last:             s.last,
	}
}

func (s *Syncer) remember(report SyncReport) {
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
}

// SyncFromCloud fetches every table and replaces the local copy. Under the
// abort policy a single failed table leaves the store untouched; under skip
// only the tables that arrived intact are replaced.
func (s *Syncer) SyncFromCloud(ctx context.Context) (report SyncReport, err error) {
	if !s.gateway.Enabled() {
		return report, ErrRemoteNotConfigured
	}
	if !s.running.CompareAndSwap(false, true) {
		return report, ErrSyncInProgress
	}
	defer s.running.Store(false)

	if s.locker.Enabled() {
		token, ok, lockErr := s.locker.TryLock(ctx, syncLockKey, s.lockTTL)
		if lockErr != nil {
			return report, fmt.Errorf("acquire sync lock: %w", lockErr)
		}
		if !ok {
			return report, ErrSyncInProgress
		}
		defer func() {
			if relErr := s.locker.Release(context.WithoutCancel(ctx), syncLockKey, token); relErr != nil {
				s.log.Warn("failed to release sync lock", zap.Error(relErr))
			}
		}()
	}

	ctx, span := s.tracer.Start(ctx, "cloudsync.SyncFromCloud", trace.WithAttributes(attribute.String("policy", s.policy)))
	defer span.End()

	start := s.clock.Now()
	report = SyncReport{StartedAt: start, Policy: s.policy}
	defer func() {
		report.FinishedAt = s.clock.Now()
		s.metrics.RecordSync(err, report.FinishedAt.Sub(start))
		s.remember(report)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	snap, results := s.gateway.FetchSnapshot(ctx, domain.Tables)
	report.Tables = results

	if failed := report.Failed(); len(failed) > 0 {
		var errs []error
		for _, t := range results {
			if t.err != nil {
				errs = append(errs, t.err)
			}
		}
		if s.policy != config.SyncPolicySkip || len(failed) == len(results) {
			s.log.Warn("sync aborted, local data kept",
				zap.Strings("failed_tables", failed),
				zap.String("policy", s.policy),
			)
			return report, fmt.Errorf("%w: %s: %w", ErrSyncAborted, strings.Join(failed, ", "), errors.Join(errs...))
		}
		s.log.Warn("sync skipping failed tables", zap.Strings("failed_tables", failed))
	}

	keep, err := s.outbox.DirtyFunc(ctx)
	if err != nil {
		return report, fmt.Errorf("load pending outbox entities: %w", err)
	}

	report.KeptLocal = s.store.ReplaceFromRemote(ctx, snap, report.Succeeded(), keep)
	report.Committed = true

	if s.flusher != nil {
		if flushErr := s.flusher.Flush(ctx); flushErr != nil {
			s.log.Warn("cache flush after sync failed", zap.Error(flushErr))
		}
	}

	s.log.Info("sync completed",
		zap.Int("rows", snap.Len()),
		zap.Int("kept_local", report.KeptLocal),
		zap.Duration("duration", s.clock.Now().Sub(start)),
	)
	return report, nil
}

// FetchSnapshot reads the given tables concurrently. Tables that failed are
// reported in the results and left empty in the snapshot.
func (g *Gateway) FetchSnapshot(ctx context.Context, tables []string) (domain.Snapshot, []TableResult) {
	results := make([]TableResult, len(tables))
	assigns := make([]func(*domain.Snapshot), len(tables))

	var eg errgroup.Group
	eg.SetLimit(fetchConcurrency)
	for i, table := range tables {
		eg.Go(func() error {
			results[i] = TableResult{Table: table}
			entry, ok := registry[table]
			if !ok {
				results[i].err = fmt.Errorf("%w: %s", ErrUnknownTable, table)
				results[i].Error = results[i].err.Error()
				return nil
			}

			assign, rows, err := entry.fetch(ctx, g)
			results[i].Rows = rows
			if err != nil {
				results[i].err = err
				results[i].Error = err.Error()
				g.log.Warn("remote table fetch failed",
					zap.String("table", table),
					zap.Int("rows_before_failure", rows),
					zap.Error(err),
				)
				return nil
			}
			assigns[i] = assign
			g.metrics.ObserveTableRows(table, rows)
			return nil
		})
	}
	_ = eg.Wait()

	var snap domain.Snapshot
	for _, assign := range assigns {
		if assign != nil {
			assign(&snap)
		}
	}
	return snap, results
}
