package daycache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/config"
	"github.com/wonny/scanengine/pkg/database"
	"github.com/wonny/scanengine/pkg/logger"
	"github.com/wonny/scanengine/pkg/redis"
)

var asOf = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

func sampleRows() []contracts.LedgerRow {
	return []contracts.LedgerRow{
		contracts.NewLedgerRow(contracts.BacktestSample{
			Instrument:  "005930",
			AsOf:        asOf,
			Orientation: contracts.OrientationBuy,
			Returns:     map[int]float64{1: 1.5, 5: -0.5, 30: 12},
		}),
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, found, err := s.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	assert.False(t, found)

	rows := sampleRows()
	require.NoError(t, s.Put(ctx, "sig", asOf, rows))

	got, found, err := s.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rows, got)

	// Returned rows are private copies
	got[0].Returns[1] = 999
	again, _, _ := s.Get(ctx, "sig", asOf)
	assert.Equal(t, 1.5, again[0].Returns[1])
}

func TestMemoryStore_EmptyDayIsAHit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "sig", asOf, nil))

	rows, found, err := s.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, rows)
}

func TestMemoryStore_Corrupt(t *testing.T) {
	s := NewMemoryStore()
	s.PutRaw("sig", asOf, []byte("{truncated"))

	_, found, err := s.Get(context.Background(), "sig", asOf)
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "a", asOf, nil))
	require.NoError(t, s.Put(ctx, "a", asOf.AddDate(0, 0, -1), nil))
	require.NoError(t, s.Put(ctx, "b", asOf, nil))

	n, err := s.Clear(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	n, _ = s.Clear(ctx, "")
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Len())
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(redis.Wrap(db), time.Hour)
	ctx := context.Background()

	rows := sampleRows()
	payload, err := json.Marshal(rows)
	require.NoError(t, err)

	key := "scan:cache:day:sig:2026-03-06"
	mock.ExpectSet(key, payload, time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(payload))
	mock.ExpectGet("scan:cache:day:sig:2026-03-05").RedisNil()
	mock.ExpectGet("scan:cache:day:sig:2026-03-04").SetVal("not json")

	require.NoError(t, s.Put(ctx, "sig", asOf, rows))

	got, found, err := s.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rows, got)

	_, found, err = s.Get(ctx, "sig", asOf.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.Get(ctx, "sig", asOf.AddDate(0, 0, -2))
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrCorrupt))

	require.NoError(t, mock.ExpectationsWereMet())
}

// failingStore errors on every call
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string, time.Time) ([]contracts.LedgerRow, bool, error) {
	return nil, false, f.err
}
func (f failingStore) Put(context.Context, string, time.Time, []contracts.LedgerRow) error {
	return f.err
}
func (f failingStore) Clear(context.Context, string) (int, error) { return 0, f.err }

func TestLayered_ReadThroughAndBackfill(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewMemoryStore(), NewMemoryStore()
	c := NewLayered(l1, l2, logger.Nop())

	require.NoError(t, l2.Put(ctx, "sig", asOf, sampleRows()))

	got, found, err := c.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleRows(), got)
	assert.Equal(t, 1, l1.Len(), "L1 backfilled from L2")

	require.NoError(t, c.Put(ctx, "sig", asOf.AddDate(0, 0, -1), nil))
	assert.Equal(t, 2, l1.Len())
	assert.Equal(t, 2, l2.Len())
}

func TestLayered_L1FailureFallsBack(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryStore()
	c := NewLayered(failingStore{err: errors.New("redis down")}, l2, logger.Nop())

	require.NoError(t, c.Put(ctx, "sig", asOf, sampleRows()))

	_, found, err := c.Get(ctx, "sig", asOf)
	require.NoError(t, err)
	assert.True(t, found)

	n, err := c.Clear(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLayered_L2FailureFailsPut(t *testing.T) {
	c := NewLayered(NewMemoryStore(), failingStore{err: errors.New("db down")}, logger.Nop())
	assert.Error(t, c.Put(context.Background(), "sig", asOf, nil))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	s, err := Open(ctx, cfg, nil, nil, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Scan.DayCache = "redis"
	_, err = Open(ctx, cfg, nil, nil, logger.Nop())
	assert.Error(t, err)

	cfg.Scan.DayCache = "postgres"
	_, err = Open(ctx, cfg, nil, nil, logger.Nop())
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := config.Default()
	cfg.Database.URL = url
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))

	s := NewPostgresStore(db.Pool)
	sig := "test-" + time.Now().Format("150405.000000")
	defer s.Clear(ctx, sig) //nolint:errcheck

	_, found, err := s.Get(ctx, sig, asOf)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, sig, asOf, sampleRows()))
	require.NoError(t, s.Put(ctx, sig, asOf, sampleRows()))

	got, found, err := s.Get(ctx, sig, asOf)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleRows()[0].Returns, got[0].Returns)

	n, err := s.Clear(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
