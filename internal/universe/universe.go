package universe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/scanengine/internal/external/naver"
	"github.com/wonny/scanengine/pkg/logger"
)

// ErrEmptyUniverse means no source produced a single instrument
var ErrEmptyUniverse = errors.New("empty universe")

// Instrument is one listed instrument
type Instrument struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// Lister lists the instruments of an exchange
type Lister interface {
	Name() string
	List(ctx context.Context, exchange string) ([]Instrument, error)
}

// Resolver turns an exchange tag or an explicit list into a scan universe
// ⭐ SSOT: 유니버스 결정은 여기서만
type Resolver struct {
	listers []Lister
	logger  *logger.Logger
}

// NewResolver tries listers in order; the first non-empty listing wins
func NewResolver(log *logger.Logger, listers ...Lister) *Resolver {
	return &Resolver{
		listers: listers,
		logger:  log.WithField("module", "universe"),
	}
}

// Resolve returns explicit (deduplicated, order kept) when given, else the exchange listing
func (r *Resolver) Resolve(ctx context.Context, exchange string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return Dedup(explicit), nil
	}

	items, err := r.List(ctx, exchange)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(items))
	for i, it := range items {
		codes[i] = it.Code
	}
	return Dedup(codes), nil
}

// List returns the first non-empty listing among the configured listers
func (r *Resolver) List(ctx context.Context, exchange string) ([]Instrument, error) {
	var errs []error
	for _, l := range r.listers {
		items, err := l.List(ctx, exchange)
		if err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"source":   l.Name(),
				"exchange": exchange,
			}).Warn("Universe source failed")
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
			continue
		}
		if len(items) == 0 {
			continue
		}

		r.logger.WithFields(map[string]interface{}{
			"source":   l.Name(),
			"exchange": exchange,
			"count":    len(items),
		}).Info("Universe resolved")
		return items, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w for %q: %w", ErrEmptyUniverse, exchange, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w for %q", ErrEmptyUniverse, exchange)
}

// Dedup drops blanks and repeats, keeping first occurrence order
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// rowQuerier is the subset of pgxpool.Pool the DB source uses
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DBSource lists active stocks from data.stocks
type DBSource struct {
	db rowQuerier
}

// NewDBSource creates the source
func NewDBSource(db rowQuerier) *DBSource {
	return &DBSource{db: db}
}

// Name implements Lister
func (s *DBSource) Name() string { return "postgres" }

// List implements Lister; an empty exchange lists every market
func (s *DBSource) List(ctx context.Context, exchange string) ([]Instrument, error) {
	query := `
		SELECT code, name, market
		FROM data.stocks
		WHERE status = 'active' AND ($1 = '' OR market = $1)
		ORDER BY code
	`

	rows, err := s.db.Query(ctx, query, strings.ToUpper(exchange))
	if err != nil {
		return nil, fmt.Errorf("query active stocks: %w", err)
	}
	defer rows.Close()

	var out []Instrument
	for rows.Next() {
		var it Instrument
		if err := rows.Scan(&it.Code, &it.Name, &it.Market); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// NaverSource lists an exchange from the Naver market-sum pages
type NaverSource struct {
	client *naver.Client
}

// NewNaverSource creates the source
func NewNaverSource(client *naver.Client) *NaverSource {
	return &NaverSource{client: client}
}

// Name implements Lister
func (s *NaverSource) Name() string { return "naver" }

// List implements Lister
func (s *NaverSource) List(ctx context.Context, exchange string) ([]Instrument, error) {
	items, err := s.client.FetchListing(ctx, exchange)
	if err != nil {
		return nil, err
	}
	out := make([]Instrument, len(items))
	for i, it := range items {
		out[i] = Instrument{Code: it.Code, Name: it.Name, Market: strings.ToUpper(exchange)}
	}
	return out, nil
}
