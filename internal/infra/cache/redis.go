// Package cache provides Redis-based caching for quick status reads.
// The store stays the source of truth; entries are written after a tick commits.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// ErrMiss is returned when no snapshot is cached for a session.
var ErrMiss = errors.New("cache miss")

// StatusCache keeps the latest HUD snapshot of every ticking session.
type StatusCache struct {
	client     redis.UniversalClient
	expiration time.Duration
}

// NewStatusCache creates a status cache. A zero ttl defaults to 15 minutes.
func NewStatusCache(client redis.UniversalClient, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StatusCache{client: client, expiration: ttl}
}

// Put caches the snapshot of one session.
func (c *StatusCache) Put(ctx context.Context, status domain.SessionStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal session status: %w", err)
	}
	return c.client.Set(ctx, statusKey(status.SessionID), data, c.expiration).Err()
}

// PutMany caches a batch of snapshots in one round trip.
func (c *StatusCache) PutMany(ctx context.Context, statuses []domain.SessionStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, status := range statuses {
		data, err := json.Marshal(status)
		if err != nil {
			return fmt.Errorf("failed to marshal status for %s: %w", status.SessionID, err)
		}
		pipe.Set(ctx, statusKey(status.SessionID), data, c.expiration)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves the cached snapshot of a session.
func (c *StatusCache) Get(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	data, err := c.client.Get(ctx, statusKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var status domain.SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session status: %w", err)
	}
	return &status, nil
}

// Invalidate removes the cached snapshot of a session.
func (c *StatusCache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, statusKey(sessionID)).Err()
}

// statusKey generates the Redis key for a session snapshot.
func statusKey(sessionID string) string {
	return fmt.Sprintf("session:%s:status", sessionID)
}
