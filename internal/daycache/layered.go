package daycache

import (
	"context"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/logger"
)

// Layered reads through a fast L1 (redis) to a durable L2 (postgres).
// L1 problems never fail a lookup; L2 is the source of truth.
type Layered struct {
	l1     Store
	l2     Store
	logger *logger.Logger
}

// NewLayered combines two stores
func NewLayered(l1, l2 Store, log *logger.Logger) *Layered {
	return &Layered{
		l1:     l1,
		l2:     l2,
		logger: log.WithField("module", "daycache"),
	}
}

// Get implements contracts.DayCache
func (c *Layered) Get(ctx context.Context, signature string, date time.Time) ([]contracts.LedgerRow, bool, error) {
	rows, found, err := c.l1.Get(ctx, signature, date)
	if err != nil {
		c.logger.WithError(err).WithField("as_of", DateKey(date)).Warn("L1 day cache read failed")
	} else if found {
		return rows, true, nil
	}

	rows, found, err = c.l2.Get(ctx, signature, date)
	if err != nil || !found {
		return nil, false, err
	}

	if err := c.l1.Put(ctx, signature, date, rows); err != nil {
		c.logger.WithError(err).WithField("as_of", DateKey(date)).Warn("L1 day cache backfill failed")
	}
	return rows, true, nil
}

// Put writes L2 first so L1 never holds a day L2 lacks
func (c *Layered) Put(ctx context.Context, signature string, date time.Time, rows []contracts.LedgerRow) error {
	if err := c.l2.Put(ctx, signature, date, rows); err != nil {
		return err
	}
	if err := c.l1.Put(ctx, signature, date, rows); err != nil {
		c.logger.WithError(err).WithField("as_of", DateKey(date)).Warn("L1 day cache write failed")
	}
	return nil
}

// Clear drops the signature from both layers
func (c *Layered) Clear(ctx context.Context, signature string) (int, error) {
	if _, err := c.l1.Clear(ctx, signature); err != nil {
		c.logger.WithError(err).Warn("L1 day cache clear failed")
	}
	return c.l2.Clear(ctx, signature)
}
