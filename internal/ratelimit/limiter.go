package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storeledger/internal/config"
	"go.uber.org/zap"
)

const keyRemoteOperation = "storeledger:ratelimit:remote:%s:%s"

// RemoteLimiter throttles sync and catalog reloads per actor so a busy
// counter cannot hammer the remote backend. A nil RemoteLimiter allows all.
type RemoteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewRemoteLimiter returns nil unless both redis and a positive rate are configured.
func NewRemoteLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *RemoteLimiter {
	if client == nil || !cfg.Limit.Enabled() {
		return nil
	}
	return &RemoteLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Limit.RemoteRate,
		burst:  cfg.Limit.RemoteBurst,
		log:    log.Named("ratelimit"),
	}
}

// Allow consumes one token for (operation, actor). Redis failures fail open.
func (l *RemoteLimiter) Allow(ctx context.Context, operation, actor string) *Result {
	if l == nil {
		return &Result{Allowed: true}
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "anonymous"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyRemoteOperation, operation, actor), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("operation", operation), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}
	}
	return res
}
