package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Enabled = false

	client, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(&Client{}, "test")

	allowed, remaining, err := limiter.Allow(context.Background(), NaverRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, NaverRateLimit.Limit, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), NaverRateLimit))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(&Client{}, "test")

	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Set(context.Background(), "key", "v", time.Minute))
}

func TestCache_GetHitMissAndCorrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(Wrap(db), "scan")
	ctx := context.Background()

	payload, _ := json.Marshal([]int{1, 2, 3})
	mock.ExpectGet("scan:cache:hit").SetVal(string(payload))
	mock.ExpectGet("scan:cache:miss").RedisNil()
	mock.ExpectGet("scan:cache:bad").SetVal("{not json")
	mock.ExpectGet("scan:cache:down").SetErr(errors.New("connection refused"))

	var got []int
	found, err := cache.Get(ctx, "hit", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, got)

	found, err = cache.Get(ctx, "miss", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = cache.Get(ctx, "bad", &got)
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, found)

	_, err = cache.Get(ctx, "down", &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(Wrap(db), "scan")

	mock.ExpectSet("scan:cache:k", []byte(`{"a":1}`), time.Hour).SetVal("OK")
	require.NoError(t, cache.Set(context.Background(), "k", map[string]int{"a": 1}, time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "day:abc123:2026-01-15", DayKey("abc123", "2026-01-15"))
	cache := NewCache(&Client{}, "scan")
	assert.Equal(t, "scan:cache:day:abc123:2026-01-15", cache.Key(DayKey("abc123", "2026-01-15")))
}
