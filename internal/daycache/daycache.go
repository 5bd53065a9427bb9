package daycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/config"
	"github.com/wonny/scanengine/pkg/database"
	"github.com/wonny/scanengine/pkg/logger"
	"github.com/wonny/scanengine/pkg/redis"
)

// ErrCorrupt marks an entry that exists but cannot be read back.
// The day walker treats it as a miss and recomputes the day.
var ErrCorrupt = errors.New("day cache entry corrupt")

// Store is a DayCache that can also drop a signature's days (cache clear)
type Store interface {
	contracts.DayCache
	Clear(ctx context.Context, signature string) (int, error)
}

// DateKey formats the date part of a cache key
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

func encode(rows []contracts.LedgerRow) ([]byte, error) {
	if rows == nil {
		rows = []contracts.LedgerRow{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode day rows: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]contracts.LedgerRow, error) {
	var rows []contracts.LedgerRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rows, nil
}

// Open builds the store selected by SCAN_DAY_CACHE.
// db and rc may be nil when the selected backend does not need them.
func Open(ctx context.Context, cfg *config.Config, db *database.DB, rc *redis.Client, log *logger.Logger) (Store, error) {
	switch cfg.Scan.DayCache {
	case "memory":
		return NewMemoryStore(), nil

	case "redis":
		if rc == nil || !rc.Enabled() {
			return nil, fmt.Errorf("day cache redis: REDIS_ENABLED is false")
		}
		return NewRedisStore(rc, cfg.Scan.DayCacheTTL), nil

	case "postgres", "layered":
		if db == nil {
			return nil, fmt.Errorf("day cache %s: database not configured", cfg.Scan.DayCache)
		}
		pg := NewPostgresStore(db.Pool)
		if err := db.EnsureSchema(ctx, Schema...); err != nil {
			return nil, fmt.Errorf("day cache schema: %w", err)
		}
		if cfg.Scan.DayCache == "postgres" {
			return pg, nil
		}
		if rc == nil || !rc.Enabled() {
			log.Warn("Layered day cache without redis, using postgres only")
			return pg, nil
		}
		return NewLayered(NewRedisStore(rc, cfg.Scan.DayCacheTTL), pg, log), nil

	default:
		return nil, fmt.Errorf("unknown day cache %q", cfg.Scan.DayCache)
	}
}
