package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPPort string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig

	Socrata SocrataConfig

	ExportDir string

	RefreshIntervalMinutes int64
	RunRetentionDays       int64

	// SchedulerJobs restricts which batch jobs this instance runs.
	// Empty means all jobs (monolith mode).
	SchedulerJobs []string

	SeedDemoData bool

	RemoteMetrics RemoteMetricsConfig
}

// RateLimitConfig configures the Redis-backed API limiter. Disabled when
// no Redis address is configured.
type RateLimitConfig struct {
	Enabled               bool
	KeyRatePerMinute      float64
	KeyBurst              int
	EndpointRatePerMinute float64
	EndpointBurst         int
	RefreshLockTTLSecs    int64
}

// SocrataConfig configures the NYC Open Data fetch layer.
type SocrataConfig struct {
	BaseURL        string
	AppToken       string
	WindowDays     int
	PageLimit      int
	TimeoutSeconds int64
	CacheTTLSecs   int64
	RatePerMinute  int64
	RateBurst      int64
	BreakerTrips   int
	BreakerResetS  int64
}

// RemoteMetricsConfig configures pushing run metrics to a central
// Prometheus. Disabled unless an endpoint is set.
type RemoteMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "sentinel"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPPort: getenv("PORT", "8080"),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sentinel"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		RateLimit: RateLimitConfig{
			Enabled:               getenvBool("RATE_LIMIT_ENABLED", true),
			KeyRatePerMinute:      float64(getenvInt64("RATE_LIMIT_KEY_PER_MINUTE", 120)),
			KeyBurst:              int(getenvInt64("RATE_LIMIT_KEY_BURST", 30)),
			EndpointRatePerMinute: float64(getenvInt64("RATE_LIMIT_ENDPOINT_PER_MINUTE", 1200)),
			EndpointBurst:         int(getenvInt64("RATE_LIMIT_ENDPOINT_BURST", 200)),
			RefreshLockTTLSecs:    getenvInt64("REFRESH_LOCK_TTL_SECONDS", 900),
		},

		Socrata: SocrataConfig{
			BaseURL:        getenv("SOCRATA_BASE_URL", "https://data.cityofnewyork.us"),
			AppToken:       strings.TrimSpace(getenv("SOCRATA_APP_TOKEN", "")),
			WindowDays:     int(getenvInt64("SOCRATA_WINDOW_DAYS", 90)),
			PageLimit:      int(getenvInt64("SOCRATA_PAGE_LIMIT", 5000)),
			TimeoutSeconds: getenvInt64("SOCRATA_TIMEOUT_SECONDS", 30),
			CacheTTLSecs:   getenvInt64("SOCRATA_CACHE_TTL_SECONDS", 300),
			RatePerMinute:  getenvInt64("SOCRATA_RATE_PER_MINUTE", 1000),
			RateBurst:      getenvInt64("SOCRATA_RATE_BURST", 50),
			BreakerTrips:   int(getenvInt64("SOCRATA_BREAKER_TRIPS", 5)),
			BreakerResetS:  getenvInt64("SOCRATA_BREAKER_RESET_SECONDS", 60),
		},

		ExportDir: getenv("EXPORT_DIR", "./exports"),

		RefreshIntervalMinutes: getenvInt64("REFRESH_INTERVAL_MINUTES", 360),
		RunRetentionDays:       getenvInt64("RUN_RETENTION_DAYS", 30),

		SchedulerJobs: getenvList("SCHEDULER_JOBS"),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),

		RemoteMetrics: RemoteMetricsConfig{
			Enabled:   getenvBool("REMOTE_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("REMOTE_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("REMOTE_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("REMOTE_METRICS_AUTH_TOKEN", "")),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
