package daycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/scanengine/internal/contracts"
)

// Schema is the DDL the postgres store needs
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS scan`,
	`CREATE TABLE IF NOT EXISTS scan.day_cache (
		signature  TEXT        NOT NULL,
		as_of      DATE        NOT NULL,
		rows       JSONB       NOT NULL,
		row_count  INTEGER     NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (signature, as_of)
	)`,
}

// querier is the subset of pgxpool.Pool the store uses
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps days in scan.day_cache, one JSONB row per (signature, date)
// ⭐ SSOT: 백테스트 일자 캐시 영속화는 여기서만
type PostgresStore struct {
	db querier
}

// NewPostgresStore creates the store; call database.EnsureSchema(Schema...) first
func NewPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get implements contracts.DayCache
func (s *PostgresStore) Get(ctx context.Context, signature string, date time.Time) ([]contracts.LedgerRow, bool, error) {
	query := `
		SELECT rows
		FROM scan.day_cache
		WHERE signature = $1 AND as_of = $2
	`

	var data []byte
	err := s.db.QueryRow(ctx, query, signature, DateKey(date)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get day cache: %w", err)
	}

	rows, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// Put implements contracts.DayCache
func (s *PostgresStore) Put(ctx context.Context, signature string, date time.Time, rows []contracts.LedgerRow) error {
	data, err := encode(rows)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scan.day_cache (signature, as_of, rows, row_count, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (signature, as_of) DO UPDATE SET
			rows = EXCLUDED.rows,
			row_count = EXCLUDED.row_count,
			created_at = NOW()
	`

	if _, err := s.db.Exec(ctx, query, signature, DateKey(date), data, len(rows)); err != nil {
		return fmt.Errorf("put day cache: %w", err)
	}
	return nil
}

// Clear drops every day of a signature; an empty signature drops everything
func (s *PostgresStore) Clear(ctx context.Context, signature string) (int, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if signature == "" {
		tag, err = s.db.Exec(ctx, `DELETE FROM scan.day_cache`)
	} else {
		tag, err = s.db.Exec(ctx, `DELETE FROM scan.day_cache WHERE signature = $1`, signature)
	}
	if err != nil {
		return 0, fmt.Errorf("clear day cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
