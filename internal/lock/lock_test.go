package lock

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_NilIsDisabled(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())

	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
	assert.Nil(t, NewLocker(nil))
}

func TestLocker_Redis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	l := NewLocker(client)
	key := "storeledger:test:lock:" + time.Now().Format("150405.000000")

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, "someone-else"))
	_, ok, _ = l.TryLock(ctx, key, time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, token))
	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(ctx, key)
}
