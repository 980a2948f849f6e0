package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewRemoteLimiter_DisabledWithoutRedisOrRate(t *testing.T) {
	cfg := config.Config{Limit: config.RateLimitConfig{RemoteRate: 1, RemoteBurst: 2}}
	assert.Nil(t, NewRemoteLimiter(cfg, nil, zap.NewNop()))
}

func TestRemoteLimiter_NilAllows(t *testing.T) {
	var l *RemoteLimiter
	assert.True(t, l.Allow(context.Background(), "sync", "bob").Allowed)
}

func TestTokenBucket_RejectsInvalidInput(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
	assert.Equal(t, 6*time.Second, defaultBucketTTL(1, 3))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(4), castToInt("4"))
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.InDelta(t, 2.5, castToFloat("2.5"), 0.0001)
	assert.InDelta(t, 0, castToFloat(nil), 0.0001)
}
