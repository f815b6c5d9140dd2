package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewClient(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestRedisChallengeLedger_Consume(t *testing.T) {
	mr, client := newTestRedis(t)
	ledger := NewRedisChallengeLedger(client)
	ctx := context.Background()

	consumed, err := ledger.IsConsumed(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, consumed)

	ok, err := ledger.Consume(ctx, "jti-1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Consume(ctx, "jti-1", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second consume must lose")

	consumed, err = ledger.IsConsumed(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, consumed)

	assert.Equal(t, 5*time.Minute, mr.TTL(challengeKeyPrefix+"jti-1"))

	mr.FastForward(6 * time.Minute)
	consumed, err = ledger.IsConsumed(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, consumed, "entry expires with the challenge token")
}

func TestRedisChallengeLedger_ConcurrentConsume(t *testing.T) {
	_, client := newTestRedis(t)
	ledger := NewRedisChallengeLedger(client)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Consume(context.Background(), "shared", time.Minute)
			if err != nil {
				t.Errorf("Consume() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestRedisChallengeLedger_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	ledger := NewRedisChallengeLedger(client)
	mr.Close()

	_, err := ledger.Consume(context.Background(), "jti", time.Minute)
	assert.ErrorIs(t, err, services.ErrUnavailable)
}

func TestRedisChallengeLedger_Release(t *testing.T) {
	mr, client := newTestRedis(t)
	ledger := NewRedisChallengeLedger(client)
	ctx := context.Background()

	ok, err := ledger.Consume(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ledger.Release(ctx, "jti-2"))
	assert.False(t, mr.Exists(challengeKeyPrefix+"jti-2"))

	ok, err = ledger.Consume(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released challenge can be consumed again")

	mr.Close()
	assert.ErrorIs(t, ledger.Release(ctx, "jti-2"), services.ErrUnavailable)
}
