package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scanner
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Naver NaverConfig

	// Scan engine
	Scan ScanConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NaverConfig holds Naver Finance configuration
type NaverConfig struct {
	BaseURL      string
	ChartURL     string
	RequestsPerS int // in-process request budget
}

// ScanConfig holds the scan scheduling engine tunables.
// The iteration constants are heuristics, not invariants; tune per deployment.
type ScanConfig struct {
	Workers int // parallel evaluators, 0 = runtime.NumCPU()

	SingleIterationMax int // universes up to this size run as one iteration
	IdealPerIteration  int
	MaxPerIteration    int
	MinPerIteration    int
	PriorIterations    int

	TerminateTimeout time.Duration
	LookbackDays     int
	TestMode         bool // forces quota to 1

	DayCache    string // memory, redis, postgres, layered
	DayCacheTTL time.Duration
	CacheToday  bool

	DataSource  string // postgres, naver
	LoadWorkers int

	MonitorSchedule string
	Holidays        []string // YYYY-MM-DD, non-trading weekdays
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Naver: NaverConfig{
			BaseURL:      getEnv("NAVER_BASE_URL", "https://finance.naver.com"),
			ChartURL:     getEnv("NAVER_CHART_URL", "https://fchart.stock.naver.com"),
			RequestsPerS: getEnvAsInt("NAVER_REQUESTS_PER_SECOND", 10),
		},

		Scan: ScanConfig{
			Workers:            getEnvAsInt("SCAN_WORKERS", 0),
			SingleIterationMax: getEnvAsInt("SCAN_SINGLE_ITERATION_MAX", 2500),
			IdealPerIteration:  getEnvAsInt("SCAN_IDEAL_PER_ITERATION", 100),
			MaxPerIteration:    getEnvAsInt("SCAN_MAX_PER_ITERATION", 500),
			MinPerIteration:    getEnvAsInt("SCAN_MIN_PER_ITERATION", 10),
			PriorIterations:    getEnvAsInt("SCAN_PRIOR_ITERATIONS", 1),
			TerminateTimeout:   getEnvAsDuration("SCAN_TERMINATE_TIMEOUT", "5s"),
			LookbackDays:       getEnvAsInt("SCAN_LOOKBACK_DAYS", 280),
			TestMode:           getEnvAsBool("SCAN_TEST_MODE", false),
			DayCache:           getEnv("SCAN_DAY_CACHE", "memory"),
			DayCacheTTL:        getEnvAsDuration("SCAN_DAY_CACHE_TTL", "168h"),
			CacheToday:         getEnvAsBool("SCAN_CACHE_TODAY", false),
			DataSource:         getEnv("SCAN_DATA_SOURCE", "postgres"),
			LoadWorkers:        getEnvAsInt("SCAN_LOAD_WORKERS", 8),
			MonitorSchedule:    getEnv("SCAN_MONITOR_SCHEDULE", "0 */5 9-15 * * MON-FRI"),
			Holidays:           getEnvAsList("SCAN_HOLIDAYS"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied and no environment lookups.
// Used by tests and by library callers that wire the engine by hand.
func Default() *Config {
	return &Config{
		Port: "8089",
		Env:  "development",
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Redis: RedisConfig{Host: "localhost", Port: "6379"},
		Naver: NaverConfig{
			BaseURL:      "https://finance.naver.com",
			ChartURL:     "https://fchart.stock.naver.com",
			RequestsPerS: 10,
		},
		Scan: ScanConfig{
			SingleIterationMax: 2500,
			IdealPerIteration:  100,
			MaxPerIteration:    500,
			MinPerIteration:    10,
			PriorIterations:    1,
			TerminateTimeout:   5 * time.Second,
			LookbackDays:       280,
			DayCache:           "memory",
			DayCacheTTL:        168 * time.Hour,
			DataSource:         "postgres",
			LoadWorkers:        8,
			MonitorSchedule:    "0 */5 9-15 * * MON-FRI",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// WorkerCount resolves the pool size; 0 means one worker per CPU.
func (s ScanConfig) WorkerCount() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

// RequiresDatabase reports whether any configured component talks to Postgres
func (c *Config) RequiresDatabase() bool {
	return c.Scan.DataSource == "postgres" ||
		c.Scan.DayCache == "postgres" ||
		c.Scan.DayCache == "layered"
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.RequiresDatabase() && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for data source %q / day cache %q",
			c.Scan.DataSource, c.Scan.DayCache)
	}

	s := c.Scan
	if s.IdealPerIteration <= 0 || s.MaxPerIteration <= 0 || s.MinPerIteration <= 0 || s.PriorIterations <= 0 {
		return fmt.Errorf("SCAN iteration constants must be positive")
	}
	if s.MaxPerIteration < s.MinPerIteration {
		return fmt.Errorf("SCAN_MAX_PER_ITERATION (%d) < SCAN_MIN_PER_ITERATION (%d)",
			s.MaxPerIteration, s.MinPerIteration)
	}
	if s.Workers < 0 {
		return fmt.Errorf("SCAN_WORKERS must be >= 0")
	}

	switch s.DayCache {
	case "memory", "redis", "postgres", "layered":
	default:
		return fmt.Errorf("SCAN_DAY_CACHE must be one of: memory, redis, postgres, layered")
	}

	switch s.DataSource {
	case "postgres", "naver":
	default:
		return fmt.Errorf("SCAN_DATA_SOURCE must be one of: postgres, naver")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
