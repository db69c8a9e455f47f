package domain

import (
	"context"
	"time"
)

// SnapshotCache provides fast access to the latest market snapshot per symbol.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap MarketSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (MarketSnapshot, error)
}

// EventBus publishes bot events (decisions, executions) for external
// consumers such as dashboards.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locking, used to fence multiple bot
// instances trading the same symbol.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting for exchange API calls.
// Allow checks and counts against an explicit budget; Wait blocks under the
// limiter's default pacing until a request is permitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
