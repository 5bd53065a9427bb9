package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/scanengine/internal/calendar"
	"github.com/wonny/scanengine/internal/daycache"
	"github.com/wonny/scanengine/internal/engine"
	"github.com/wonny/scanengine/internal/external/naver"
	"github.com/wonny/scanengine/internal/marketdata"
	"github.com/wonny/scanengine/internal/metrics"
	"github.com/wonny/scanengine/internal/universe"
	"github.com/wonny/scanengine/pkg/config"
	"github.com/wonny/scanengine/pkg/database"
	"github.com/wonny/scanengine/pkg/httputil"
	"github.com/wonny/scanengine/pkg/logger"
	"github.com/wonny/scanengine/pkg/redis"
)

// app holds the process-wide dependencies every command wires from
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB // nil when nothing needs postgres
	rc       *redis.Client
	metrics  *metrics.Registry
	cache    daycache.Store
	cal      *calendar.Calendar
	naver    *naver.Client
	source   marketdata.Source
	resolver *universe.Resolver
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	a := &app{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	if cfg.RequiresDatabase() || cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		log.Info("Connected to database")
	}

	rc, err := redis.New(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rc = rc

	cal, err := calendar.Parse(cfg.Scan.Holidays)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("SCAN_HOLIDAYS: %w", err)
	}
	a.cal = cal

	cache, err := daycache.Open(ctx, cfg, a.db, rc, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open day cache: %w", err)
	}
	a.cache = cache

	httpClient := httputil.New("naver", log)
	if rc.Enabled() {
		// Shared budget across every scanner process on this Redis
		httpClient = httpClient.WithRateLimiter(redis.NewRateLimiter(rc, "ratelimit"), redis.RateLimitConfig{
			Key:    "naver",
			Limit:  cfg.Naver.RequestsPerS,
			Window: time.Second,
		})
	}
	a.naver = naver.NewClient(httpClient, cfg.Naver, log)

	var listers []universe.Lister
	if a.db != nil {
		listers = append(listers, universe.NewDBSource(a.db.Pool))
	}
	listers = append(listers, universe.NewNaverSource(a.naver))
	a.resolver = universe.NewResolver(log, listers...)

	switch cfg.Scan.DataSource {
	case "postgres":
		a.source = marketdata.NewPostgresSource(a.db.Pool)
	default:
		a.source = marketdata.NewLoader(a.naver.FetchBars, cfg.Scan.LoadWorkers, log)
	}

	log.WithFields(map[string]interface{}{
		"data_source": cfg.Scan.DataSource,
		"day_cache":   cfg.Scan.DayCache,
		"workers":     cfg.Scan.WorkerCount(),
		"redis":       rc.Enabled(),
	}).Debug("Application wired")

	return a, nil
}

func (a *app) newPipeline() (*engine.Pipeline, error) {
	return engine.New(engine.Options{
		Scan:     a.cfg.Scan,
		Source:   a.source,
		Cache:    a.cache,
		Calendar: a.cal,
		Resolver: a.resolver,
		Logger:   a.log,
		Metrics:  a.metrics,
	})
}

func (a *app) close() {
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
