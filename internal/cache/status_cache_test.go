package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisStatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStatusCache(client), mr
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, CampaignStatusKey(7), "active", CampaignStatusTTL))

	val, hit, err := c.Get(ctx, CampaignStatusKey(7))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "active", val)
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	_, hit, err := c.Get(context.Background(), CampaignStatusKey(404))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, CampaignStatusKey(7), "active", CampaignStatusTTL))
	mr.FastForward(CampaignStatusTTL + time.Second)

	_, hit, err := c.Get(ctx, CampaignStatusKey(7))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestResolveCampaignStatusRepopulatesOnMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func() (string, error) {
		loads++
		return "inactive", nil
	}

	status, err := ResolveCampaignStatus(ctx, c, 7, loader)
	require.NoError(t, err)
	assert.Equal(t, "inactive", status)
	assert.Equal(t, 1, loads)

	// Second read is served from the cache; the loader stays untouched.
	status, err = ResolveCampaignStatus(ctx, c, 7, loader)
	require.NoError(t, err)
	assert.Equal(t, "inactive", status)
	assert.Equal(t, 1, loads)
}

func TestResolveCampaignStatusLoaderError(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := ResolveCampaignStatus(context.Background(), c, 7, func() (string, error) {
		return "", errors.New("store down")
	})
	assert.Error(t, err)
}
