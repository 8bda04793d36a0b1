// internal/service/warehouse/infrastructure/availability_cache.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"orchard/internal/service/warehouse/domain"
)

const availabilityTTL = 30 * time.Second

// RedisAvailabilityCache 缓存商品的全网可售总量，只服务读路径。
// 短 TTL 加主动失效：预占/释放/铺货之后都会删键，
// 即使失效失败，30 秒内缓存也会自愈。
type RedisAvailabilityCache struct {
	client *redis.Client
}

var _ domain.AvailabilityCache = (*RedisAvailabilityCache)(nil)

func NewRedisAvailabilityCache(client *redis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client}
}

func availabilityKey(productID string) string {
	return "warehouse:availability:" + productID
}

func (c *RedisAvailabilityCache) GetTotal(ctx context.Context, productID string) (int, bool, error) {
	val, err := c.client.Get(ctx, availabilityKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("availability cache get: %w", err)
	}
	total, err := strconv.Atoi(val)
	if err != nil {
		// 脏数据当作未命中，顺手清掉
		c.client.Del(ctx, availabilityKey(productID))
		return 0, false, nil
	}
	return total, true, nil
}

func (c *RedisAvailabilityCache) SetTotal(ctx context.Context, productID string, total int) error {
	return c.client.Set(ctx, availabilityKey(productID), total, availabilityTTL).Err()
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, productID string) error {
	return c.client.Del(ctx, availabilityKey(productID)).Err()
}
