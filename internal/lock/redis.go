package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storeledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when REDIS_ADDR is not set.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}
