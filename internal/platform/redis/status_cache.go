package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/service"
)

// statusKeyPrefix namespaces unit status entries.
const statusKeyPrefix = "unitstatus:"

// DefaultStatusTTL bounds how stale a cached status read may be when an
// invalidation is missed.
const DefaultStatusTTL = 5 * time.Minute

// StatusCache implements service.StatusCache on top of the generic Cache.
// It swallows backend errors on reads so a Redis outage degrades status
// reads to the store instead of failing them.
type StatusCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatusCache creates a StatusCache. A non-positive ttl falls back to
// DefaultStatusTTL.
func NewStatusCache(cache *Cache, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{cache: cache, ttl: ttl}
}

// Ensure StatusCache implements service.StatusCache interface
var _ service.StatusCache = (*StatusCache)(nil)

// Get implements service.StatusCache.Get. Misses and backend failures
// both return (nil, nil); the service falls through to the store.
func (s *StatusCache) Get(ctx context.Context, learnerID, unitID uuid.UUID) (*service.UnitStatus, error) {
	var status service.UnitStatus
	if err := s.cache.Get(ctx, statusKey(learnerID, unitID), &status); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, nil
	}
	return &status, nil
}

// Set implements service.StatusCache.Set
func (s *StatusCache) Set(ctx context.Context, learnerID, unitID uuid.UUID, status *service.UnitStatus) error {
	if status == nil {
		return nil
	}
	return s.cache.Set(ctx, statusKey(learnerID, unitID), status, s.ttl)
}

// Invalidate implements service.StatusCache.Invalidate
func (s *StatusCache) Invalidate(ctx context.Context, learnerID, unitID uuid.UUID) error {
	return s.cache.Delete(ctx, statusKey(learnerID, unitID))
}

func statusKey(learnerID, unitID uuid.UUID) string {
	return statusKeyPrefix + learnerID.String() + ":" + unitID.String()
}
