package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/scanengine/internal/contracts"
)

// rowQuerier is the subset of pgxpool.Pool the source uses
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads data.daily_prices in one query per load
// ⭐ SSOT: 가격 데이터 조회는 여기서만
type PostgresSource struct {
	db rowQuerier
}

// NewPostgresSource creates the source
func NewPostgresSource(db rowQuerier) *PostgresSource {
	return &PostgresSource{db: db}
}

// Load implements Source
func (s *PostgresSource) Load(ctx context.Context, instruments []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	query := `
		SELECT stock_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_code = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY stock_code, trade_date ASC
	`

	rows, err := s.db.Query(ctx, query, instruments, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]contracts.Bar, len(instruments))
	for rows.Next() {
		var (
			code                                        string
			b                                           contracts.Bar
			openPrice, highPrice, lowPrice, closePrice int64
			volume                                      int64
		)
		if err := rows.Scan(&code, &b.Date, &openPrice, &highPrice, &lowPrice, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		// 가격은 원 단위 정수
		b.Open = float64(openPrice)
		b.High = float64(highPrice)
		b.Low = float64(lowPrice)
		b.Close = float64(closePrice)
		b.Volume = float64(volume)
		out[code] = append(out[code], b)
	}

	return out, rows.Err()
}
