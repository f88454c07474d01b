package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrdinanceCache keeps municipal waste-ordinance lookups in Redis so repeated
// research jobs for the same jurisdiction skip the upstream source. Entries
// expire on TTL; there is no explicit refresh.
type OrdinanceCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewOrdinanceCache(rdb *redis.Client, ttl time.Duration) *OrdinanceCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &OrdinanceCache{rdb: rdb, ttl: ttl, prefix: "ordinance:"}
}

// Get returns the cached ordinance text for a jurisdiction, or ok=false on a
// miss.
func (c *OrdinanceCache) Get(ctx context.Context, jurisdiction string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefix+jurisdiction).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (c *OrdinanceCache) Set(ctx context.Context, jurisdiction, text string) error {
	return c.rdb.Set(ctx, c.prefix+jurisdiction, text, c.ttl).Err()
}

func (c *OrdinanceCache) Invalidate(ctx context.Context, jurisdiction string) error {
	return c.rdb.Del(ctx, c.prefix+jurisdiction).Err()
}
