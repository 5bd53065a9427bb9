package daycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/redis"
)

// RedisStore caches days as JSON under "<prefix>:cache:day:<signature>:<date>"
type RedisStore struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisStore creates a redis-backed store; ttl 0 keeps entries forever
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		cache: redis.NewCache(client, "scan"),
		ttl:   ttl,
	}
}

// Get implements contracts.DayCache
func (s *RedisStore) Get(ctx context.Context, signature string, date time.Time) ([]contracts.LedgerRow, bool, error) {
	var rows []contracts.LedgerRow
	found, err := s.cache.Get(ctx, redis.DayKey(signature, DateKey(date)), &rows)
	if errors.Is(err, redis.ErrDecode) {
		return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err != nil || !found {
		return nil, false, err
	}
	if rows == nil {
		rows = []contracts.LedgerRow{}
	}
	return rows, true, nil
}

// Put implements contracts.DayCache
func (s *RedisStore) Put(ctx context.Context, signature string, date time.Time, rows []contracts.LedgerRow) error {
	if rows == nil {
		rows = []contracts.LedgerRow{}
	}
	return s.cache.Set(ctx, redis.DayKey(signature, DateKey(date)), rows, s.ttl)
}

// Clear drops every day of a signature; an empty signature drops every day
func (s *RedisStore) Clear(ctx context.Context, signature string) (int, error) {
	if signature == "" {
		signature = "*"
	}
	return s.cache.DeleteMatching(ctx, redis.DayKey(signature, "*"))
}
