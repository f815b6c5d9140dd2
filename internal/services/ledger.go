package services

import (
	"context"
	"sync"
	"time"
)

// ChallengeLedger remembers which challenge tokens have been redeemed.
// Consume reports false when the id was already consumed. Release undoes a
// Consume whose second factor then failed.
type ChallengeLedger interface {
	IsConsumed(ctx context.Context, jti string) (bool, error)
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jti string) error
}

// MemoryChallengeLedger is the single-process ledger used when Redis is not configured.
type MemoryChallengeLedger struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	now      func() time.Time
}

func NewMemoryChallengeLedger() *MemoryChallengeLedger {
	return &MemoryChallengeLedger{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (l *MemoryChallengeLedger) IsConsumed(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiresAt, exists := l.consumed[jti]
	return exists && l.now().Before(expiresAt), nil
}

func (l *MemoryChallengeLedger) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expiresAt, exists := l.consumed[jti]; exists && now.Before(expiresAt) {
		return false, nil
	}
	l.consumed[jti] = now.Add(ttl)
	return true, nil
}

func (l *MemoryChallengeLedger) Release(_ context.Context, jti string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.consumed, jti)
	return nil
}

// Cleanup drops entries whose challenge token can no longer verify anyway.
func (l *MemoryChallengeLedger) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for jti, expiresAt := range l.consumed {
		if !now.Before(expiresAt) {
			delete(l.consumed, jti)
			removed++
		}
	}
	return removed
}

func (l *MemoryChallengeLedger) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}
