package outbox

import (
	"context"
	"time"

	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Applier writes one queued operation to the remote backend.
type Applier interface {
	Apply(ctx context.Context, op Operation) error
	Enabled() bool
}

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	RowTimeout   time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		RunTimeout:   30 * time.Second,
		RowTimeout:   5 * time.Second,
	}
}

func NewDispatcherConfig(cfg config.Config) DispatcherConfig {
	out := DefaultDispatcherConfig()
	out.BatchSize = cfg.Sync.OutboxBatchSize
	out.PollInterval = cfg.Sync.OutboxInterval
	return out.withDefaults()
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	defaults := DefaultDispatcherConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = defaults.RowTimeout
	}
	return c
}

type DispatcherParams struct {
	fx.In

	Service *Service
	Log     *zap.Logger
	Applier Applier            `optional:"true"`
	Metrics *telemetry.Metrics `optional:"true"`
	Config  DispatcherConfig   `optional:"true"`
}

type Dispatcher struct {
	svc     *Service
	log     *zap.Logger
	applier Applier
	metrics *telemetry.Metrics
	cfg     DispatcherConfig
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		svc:     p.Service,
		log:     p.Log.Named("outbox.dispatcher"),
		applier: p.Applier,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil {
			d.log.Warn("outbox dispatch run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce replays one batch and returns how many operations reached the remote.
func (d *Dispatcher) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, d.cfg.RunTimeout)
	defer cancel()

	if backlog, err := d.svc.Backlog(ctx); err == nil {
		d.metrics.SetOutboxBacklog(backlog)
	}

	if d.applier == nil || !d.applier.Enabled() {
		return 0, nil
	}

	ops, err := d.svc.Pending(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	dispatched, failed := 0, 0
	for _, op := range ops {
		rowCtx, cancelRow := context.WithTimeout(ctx, d.cfg.RowTimeout)
		err := d.applier.Apply(rowCtx, *op)
		cancelRow()

		if err != nil {
			failed++
			d.log.Warn("outbox operation failed",
				zap.String("operation_id", op.ID),
				zap.String("table", op.Table),
				zap.String("entity_id", op.EntityID.String()),
				zap.Error(err),
			)
			if markErr := d.svc.MarkFailed(ctx, op, err); markErr != nil {
				return dispatched, markErr
			}
			continue
		}

		if err := d.svc.MarkDispatched(ctx, op.ID); err != nil {
			return dispatched, err
		}
		dispatched++
	}

	d.metrics.RecordOutboxDispatch("success", dispatched)
	d.metrics.RecordOutboxDispatch("error", failed)
	return dispatched, nil
}
