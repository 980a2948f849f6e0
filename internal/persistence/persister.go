package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Source is the store whose collections are persisted.
type Source interface {
	Snapshot() domain.Snapshot
	Restore(domain.Snapshot)
}

type Options struct {
	Key      string
	Debounce time.Duration
	Mobile   bool
}

// LoadResult describes what Load found under the cache key.
type LoadResult struct {
	Restored bool
	Purged   bool
	Migrated bool
	Version  int
	Rows     int
	SavedAt  time.Time
}

type Persister struct {
	kv       KV
	source   Source
	settings *config.SettingsHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *telemetry.Metrics
	opts     Options

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	writeMu sync.Mutex
}

func New(kv KV, source Source, settings *config.SettingsHolder, clk clock.Clock, log *zap.Logger, metrics *telemetry.Metrics, opts Options) *Persister {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.Key == "" {
		opts.Key = "storeledger:state"
	}
	return &Persister{
		kv:       kv,
		source:   source,
		settings: settings,
		clock:    clk,
		log:      log.Named("persistence"),
		metrics:  metrics,
		opts:     opts,
	}
}

// Schedule (re)starts the debounce window; the write happens once the
// window passes without another call.
func (p *Persister) Schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.opts.Debounce, p.fire)
}

func (p *Persister) fire() {
	p.mu.Lock()
	p.timer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.write(ctx, "debounced"); err != nil {
		p.log.Warn("debounced cache write failed", zap.Error(err))
	}
}

// Flush cancels any pending debounce and writes immediately.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	return p.write(ctx, "forced")
}

// Close writes a pending debounced change and rejects further schedules.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	pending := p.timer != nil
	if pending {
		p.timer.Stop()
		p.timer = nil
	}
	p.closed = true
	p.mu.Unlock()

	if !pending {
		return nil
	}
	return p.write(ctx, "shutdown")
}

func (p *Persister) write(ctx context.Context, mode string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	b := blob{
		SchemaVersion: SchemaVersion,
		SavedAt:       p.clock.Now(),
		Data:          p.source.Snapshot(),
	}
	if p.settings != nil {
		settings := p.settings.Get()
		b.Settings = &settings
	}

	data, err := encodeBlob(b)
	if err == nil {
		err = p.kv.Set(ctx, p.opts.Key, data)
	}
	p.metrics.RecordCacheWrite(mode, len(data), err)
	if err != nil {
		return err
	}

	p.log.Debug("cache written",
		zap.String("mode", mode),
		zap.Int("bytes", len(data)),
		zap.Int("rows", b.Data.Len()),
	)
	return nil
}

// Load restores the source from the cache. A blob with an older schema is
// purged on mobile profiles and migrated in place on desktop.
func (p *Persister) Load(ctx context.Context) (LoadResult, error) {
	data, ok, err := p.kv.Get(ctx, p.opts.Key)
	if err != nil {
		return LoadResult{}, err
	}
	if !ok {
		return LoadResult{}, nil
	}

	b, err := decodeBlob(data)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Version: b.SchemaVersion, SavedAt: b.SavedAt}
	if b.SchemaVersion < SchemaVersion {
		if p.opts.Mobile {
			if err := p.kv.Delete(ctx, p.opts.Key); err != nil {
				return LoadResult{}, err
			}
			p.log.Info("outdated cache purged",
				zap.Int("stored_version", b.SchemaVersion),
				zap.Int("current_version", SchemaVersion),
			)
			result.Purged = true
			return result, nil
		}
		result.Migrated = true
	}

	p.source.Restore(b.Data)
	if b.Settings != nil && p.settings != nil {
		if err := p.settings.Set(*b.Settings); err != nil {
			p.log.Warn("cached settings rejected", zap.Error(err))
		}
	}
	result.Restored = true
	result.Rows = b.Data.Len()

	if result.Migrated {
		if err := p.write(ctx, "migrate"); err != nil {
			return result, err
		}
		p.log.Info("cache migrated",
			zap.Int("from_version", b.SchemaVersion),
			zap.Int("to_version", SchemaVersion),
		)
	}
	return result, nil
}
