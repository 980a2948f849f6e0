package persistence

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/service"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRedisNotConfigured = errors.New("cache_backend_redis_requires_redis_addr")

var Module = fx.Module("persistence",
	fx.Provide(NewKV),
	fx.Provide(NewPersister),
	fx.Invoke(attach),
)

type Params struct {
	fx.In

	Config   config.Config
	KV       KV
	Store    *service.Store
	Settings *config.SettingsHolder `optional:"true"`
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *telemetry.Metrics `optional:"true"`
}

func NewKV(cfg config.Config, local *db.Local, client *redis.Client) (KV, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		if client == nil {
			return nil, ErrRedisNotConfigured
		}
		return NewRedisKV(client), nil
	}
	return NewGormKV(local.DB)
}

func NewPersister(p Params) *Persister {
	return New(p.KV, p.Store, p.Settings, p.Clock, p.Log, p.Metrics, Options{
		Key:      p.Config.Cache.Key,
		Debounce: p.Config.Cache.Debounce,
		Mobile:   p.Config.IsMobile(),
	})
}

func attach(lc fx.Lifecycle, store *service.Store, persister *Persister) {
	store.SetPersistence(persister)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return persister.Close(ctx)
		},
	})
}
