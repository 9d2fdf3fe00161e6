package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vendafacil/backend/internal/domain"
)

const statsKeyPrefix = "stats:"

type RedisStatisticsCache struct {
	client *redis.Client
}

func NewRedisStatisticsCache(addr string, password string, db int) *RedisStatisticsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStatisticsCache{client: client}
}

func (c *RedisStatisticsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatisticsCache) Close() error {
	return c.client.Close()
}

func (c *RedisStatisticsCache) Get(ctx context.Context, key string) (*domain.SalesStatistics, bool, error) {
	val, err := c.client.Get(ctx, statsKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats domain.SalesStatistics
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisStatisticsCache) Set(ctx context.Context, key string, value *domain.SalesStatistics, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKeyPrefix+key, payload, ttl).Err()
}

// Invalidate drops every cached statistics window. Sale mutations call this
// so stale aggregates never outlive the write.
func (c *RedisStatisticsCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, statsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
