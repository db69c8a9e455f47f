package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// Snapshots older than this are useless for trading decisions.
const snapshotTTL = 2 * time.Minute

// SnapshotCache implements domain.SnapshotCache using Redis hashes with
// JSON-serialized snapshot data.
//
// Key schema:
//
//	quantbot:snapshot:{symbol} - hash with field "data" containing JSON
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.rdb}
}

func snapshotKey(symbol string) string { return keyPrefix + "snapshot:" + symbol }

// SetSnapshot stores the latest snapshot for a symbol with a short TTL.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Symbol, err)
	}

	key := snapshotKey(snap.Symbol)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, snapshotTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot retrieves the latest snapshot for a symbol.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	data, err := sc.rdb.HGet(ctx, snapshotKey(symbol), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
