package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T) *CampaignRateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCampaignRateLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(ctx, 1, 5, time.Minute), "send %d should pass", i+1)
	}
	assert.False(t, l.Allow(ctx, 1, 5, time.Minute), "sixth send in the window must be denied")
}

func TestLimitsAreScopedPerCampaign(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, 1, 1, time.Minute))
	assert.False(t, l.Allow(ctx, 1, 1, time.Minute))
	assert.True(t, l.Allow(ctx, 2, 1, time.Minute), "campaign 2 has its own window")
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		assert.True(t, l.Allow(ctx, 1, 0, time.Minute))
	}
}
