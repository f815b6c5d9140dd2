package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/services"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "peakpoint:challenge:"

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisChallengeLedger shares consumed challenge ids across server replicas.
type RedisChallengeLedger struct {
	client redis.UniversalClient
}

var _ services.ChallengeLedger = (*RedisChallengeLedger)(nil)

func NewRedisChallengeLedger(client redis.UniversalClient) *RedisChallengeLedger {
	return &RedisChallengeLedger{client: client}
}

func (l *RedisChallengeLedger) IsConsumed(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, challengeKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", services.ErrUnavailable, err)
	}
	return n > 0, nil
}

func (l *RedisChallengeLedger) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, challengeKeyPrefix+jti, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", services.ErrUnavailable, err)
	}
	return ok, nil
}

func (l *RedisChallengeLedger) Release(ctx context.Context, jti string) error {
	if err := l.client.Del(ctx, challengeKeyPrefix+jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", services.ErrUnavailable, err)
	}
	return nil
}
