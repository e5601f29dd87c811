package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// seenTTL bounds how long dedup state survives without fresh activity. It is
// refreshed on every append, so actively watched addresses never expire.
const seenTTL = 30 * 24 * time.Hour

// SeenCache implements domain.SeenCache using one Redis set per address per
// id kind. It is consulted at watcher creation and appended after each
// cycle; both sides treat failures as non-fatal.
type SeenCache struct {
	rdb *redis.Client
}

// NewSeenCache creates a SeenCache backed by the given Client.
func NewSeenCache(c *Client) *SeenCache {
	return &SeenCache{rdb: c.Underlying()}
}

func fillKey(addr domain.Address) string  { return "seen:fills:" + addr.String() }
func orderKey(addr domain.Address) string { return "seen:orders:" + addr.String() }

// AddFillIDs appends fill ids to the address's seen set.
func (s *SeenCache) AddFillIDs(ctx context.Context, addr domain.Address, ids []string) error {
	return s.add(ctx, fillKey(addr), ids)
}

// FillIDs returns all seen fill ids for the address.
func (s *SeenCache) FillIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, fillKey(addr)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read seen fills for %s: %w", addr.Short(), err)
	}
	return ids, nil
}

// AddOrderIDs appends open-order ids to the address's seen set.
func (s *SeenCache) AddOrderIDs(ctx context.Context, addr domain.Address, ids []string) error {
	return s.add(ctx, orderKey(addr), ids)
}

// OrderIDs returns all seen open-order ids for the address.
func (s *SeenCache) OrderIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, orderKey(addr)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read seen orders for %s: %w", addr.Short(), err)
	}
	return ids, nil
}

func (s *SeenCache) add(ctx context.Context, key string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := s.rdb.Pipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, seenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append seen ids to %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SeenCache = (*SeenCache)(nil)
