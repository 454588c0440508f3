package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Chain node configuration
	Chain ChainConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Leaderboard aggregation configuration
	Leaderboard LeaderboardConfig

	// Logging configuration
	Log LogConfig
}

// ChainConfig holds chain node connection settings
type ChainConfig struct {
	RPCURL           string        `envconfig:"CHAIN_RPC_URL" default:"http://localhost:8545"`
	ChainID          int64         `envconfig:"CHAIN_ID" default:"1"`
	RequestTimeout   time.Duration `envconfig:"CHAIN_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries       int           `envconfig:"CHAIN_MAX_RETRIES" default:"3"`
	RetryDelay       time.Duration `envconfig:"CHAIN_RETRY_DELAY" default:"1s"`
	DefaultBlockTime time.Duration `envconfig:"CHAIN_DEFAULT_BLOCK_TIME" default:"12s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"analytics"`
	Password        string        `envconfig:"DB_PASSWORD" default:"analytics"`
	Name            string        `envconfig:"DB_NAME" default:"curve_analytics"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	HeavyLimitRPM   int           `envconfig:"API_HEAVY_LIMIT_RPM" default:"30"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"2m"`
}

// LeaderboardConfig holds leaderboard aggregation settings
type LeaderboardConfig struct {
	MetricsPort     int           `envconfig:"LEADERBOARD_METRICS_PORT" default:"8080"`
	Workers         int           `envconfig:"LEADERBOARD_WORKERS" default:"8"`
	CandidatePool   int           `envconfig:"LEADERBOARD_CANDIDATE_POOL" default:"100"`
	MinAUM          float64       `envconfig:"LEADERBOARD_MIN_AUM" default:"0.01"`
	RequestDeadline time.Duration `envconfig:"LEADERBOARD_REQUEST_DEADLINE" default:"8s"`
	RefreshSpec     string        `envconfig:"LEADERBOARD_REFRESH_SPEC" default:"@every 15m"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
