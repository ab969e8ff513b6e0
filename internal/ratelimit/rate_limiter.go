package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic fixed-window check-and-increment. Checking and
// incrementing in one script avoids the race of a GET -> check -> INCR
// pattern under concurrent workers.
const windowLimitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// CampaignRateLimiter enforces a campaign's message_rate_limit over its
// rate_limit_window using fixed-window counters in redis, one bucket per
// window per campaign.
type CampaignRateLimiter struct {
	redis *redis.Client

	windowScript *redis.Script
}

func NewCampaignRateLimiter(client *redis.Client) *CampaignRateLimiter {
	return &CampaignRateLimiter{
		redis:        client,
		windowScript: redis.NewScript(windowLimitLuaScript),
	}
}

// Allow reports whether one more message may be sent for the campaign in the
// current window. On a redis error the send is allowed; the limiter is a
// throttle, not a correctness mechanism.
func (l *CampaignRateLimiter) Allow(ctx context.Context, campaignID, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return true
	}

	bucket := time.Now().UnixMilli() / window.Milliseconds()
	key := fmt.Sprintf("ratelimit:campaign:%d:%d", campaignID, bucket)

	// TTL of two windows keeps the previous bucket around briefly without
	// leaking keys.
	ttl := int64(2 * window / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	result, err := l.windowScript.Run(ctx, l.redis, []string{key}, 1, limit, ttl).Slice()
	if err != nil {
		log.Printf("[RateLimiter] window check error for campaign %d: %v", campaignID, err)
		return true
	}

	allowed, _ := result[0].(int64)
	return allowed == 1
}
