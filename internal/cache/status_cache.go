package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CampaignStatusTTL bounds how stale a cached campaign status may be. A worker
// reading a stale "active" inside this window may send one extra message; that
// is the accepted tradeoff for skipping a store read per job.
const CampaignStatusTTL = 300 * time.Second

func CampaignStatusKey(campaignID int) string {
	return fmt.Sprintf("campaign:%d:status", campaignID)
}

type StatusCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func NewRedisStatusCacheFromURL(redisURL string) (*RedisStatusCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[StatusCache] Connected to Redis at %s", redisURL)
	return &RedisStatusCache{client: client}, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisStatusCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

// ResolveCampaignStatus is the explicit two-tier read: cache first, loader on
// a miss, repopulating the cache so the next job skips the store. Cache errors
// degrade to the loader rather than failing the read.
func ResolveCampaignStatus(ctx context.Context, c StatusCache, campaignID int, loader func() (string, error)) (string, error) {
	key := CampaignStatusKey(campaignID)

	status, hit, err := c.Get(ctx, key)
	if err != nil {
		log.Printf("[StatusCache] read error for %s: %v", key, err)
	}
	if hit {
		return status, nil
	}

	status, err = loader()
	if err != nil {
		return "", err
	}
	if err := c.Set(ctx, key, status, CampaignStatusTTL); err != nil {
		log.Printf("[StatusCache] repopulate error for %s: %v", key, err)
	}
	return status, nil
}
