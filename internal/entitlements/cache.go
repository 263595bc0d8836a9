package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/redis"
)

// Snapshots are kept in redis past their freshness window so an oracle outage
// can still serve a stale-but-honest verdict. The physical TTL is a multiple
// of the logical one; Fresh() decides which side of the window we are on.
const staleRetentionFactor = 10

type cacheStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SnapshotKey(userID string) string
}

// SnapshotCache stores per-user entitlement snapshots in redis.
type SnapshotCache struct {
	store cacheStore
	ttl   time.Duration
}

// NewSnapshotCache builds a cache with the provided freshness TTL.
func NewSnapshotCache(store cacheStore, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SnapshotCache{store: store, ttl: ttl}
}

// TTL returns the logical freshness window.
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Get loads the cached snapshot for a user. A miss returns (nil, nil).
func (c *SnapshotCache) Get(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	if c == nil || c.store == nil {
		return nil, nil
	}
	raw, err := c.store.Get(ctx, c.store.SnapshotKey(userID.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Fresh reports whether a cached snapshot is still within the freshness
// window.
func (c *SnapshotCache) Fresh(snap *Snapshot, now time.Time) bool {
	if snap == nil {
		return false
	}
	return now.Sub(snap.RefreshedAt) < c.ttl
}

// Put stores the snapshot, retaining it past freshness for stale fallback.
func (c *SnapshotCache) Put(ctx context.Context, snap *Snapshot) error {
	if c == nil || c.store == nil || snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := c.store.SnapshotKey(snap.UserID.String())
	return c.store.Set(ctx, key, string(raw), c.ttl*staleRetentionFactor)
}

// Invalidate drops the cached snapshot so the next check recomputes it.
// Called after every verified purchase; TTL expiry alone would make the
// "just paid, now unlocked" transition laggy.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Del(ctx, c.store.SnapshotKey(userID.String()))
}
