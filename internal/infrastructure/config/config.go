package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string                 `mapstructure:"environment"`
	LogLevel    string                 `mapstructure:"log_level"`
	Server      ServerConfig           `mapstructure:"server"`
	Database    DatabaseConfig         `mapstructure:"database"`
	Redis       RedisConfig            `mapstructure:"redis"`
	Chains      map[string]ChainConfig `mapstructure:"chains"`
	Settlement  SettlementConfig       `mapstructure:"settlement"`
	Tracing     TracingConfig          `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ChainConfig describes one chain's indexer gateway and the platform's
// collection address on that chain
type ChainConfig struct {
	GatewayURL        string  `mapstructure:"gateway_url"`
	APIKey            string  `mapstructure:"api_key"`
	CollectionAddress string  `mapstructure:"collection_address"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// TracingConfig configures the OTLP trace exporter
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// SettlementConfig tunes the reconciler sweep and the balance cache
type SettlementConfig struct {
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	BatchSize            int `mapstructure:"batch_size"`
	MaxConcurrency       int `mapstructure:"max_concurrency"`
	PaymentDeadlineHours int `mapstructure:"payment_deadline_hours"`
	LockTTLSeconds       int `mapstructure:"lock_ttl_seconds"`
	BalanceTTLSeconds    int `mapstructure:"balance_ttl_seconds"`
	// ReviewWindowHours flags PENDING_TOKENS investments for operator
	// attention after this many hours; they are never auto-failed
	ReviewWindowHours int `mapstructure:"review_window_hours"`
}

// Load reads configuration from configs/config.yaml (if present), .env, and
// environment variables, in increasing order of precedence
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 300)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "settlement_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Settlement defaults
	viper.SetDefault("settlement.sweep_interval_seconds", 60)
	viper.SetDefault("settlement.batch_size", 50)
	viper.SetDefault("settlement.max_concurrency", 10)
	viper.SetDefault("settlement.payment_deadline_hours", 24)
	viper.SetDefault("settlement.lock_ttl_seconds", 120)
	viper.SetDefault("settlement.balance_ttl_seconds", 120)
	viper.SetDefault("settlement.review_window_hours", 48)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", false)
}

// overrideFromEnv maps flat environment variables onto nested keys
func overrideFromEnv() {
	envOverrides := map[string]string{
		"DATABASE_URL":   "database.url",
		"REDIS_HOST":     "redis.host",
		"REDIS_PORT":     "redis.port",
		"REDIS_PASSWORD": "redis.password",
		"PORT":           "server.port",
		"LOG_LEVEL":      "log_level",
		"ENVIRONMENT":    "environment",
	}
	for env, key := range envOverrides {
		if value := os.Getenv(env); value != "" {
			viper.Set(key, value)
		}
	}
}

func validate(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	for name, chain := range config.Chains {
		if chain.GatewayURL == "" {
			return fmt.Errorf("chain %s: gateway_url is required", name)
		}
		if chain.CollectionAddress == "" {
			return fmt.Errorf("chain %s: collection_address is required", name)
		}
	}
	if config.Settlement.BatchSize <= 0 {
		return fmt.Errorf("settlement batch_size must be positive")
	}
	if config.Settlement.MaxConcurrency <= 0 {
		return fmt.Errorf("settlement max_concurrency must be positive")
	}
	return nil
}
