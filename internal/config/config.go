package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Warehouse drivers.
const (
	DriverSnowflake = "snowflake"
	DriverPostgres  = "postgres"
)

// Cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheBadger = "badger"
)

// WarehouseConfig holds the data warehouse connection settings.
type WarehouseConfig struct {
	Driver string

	// Snowflake credentials and session context.
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string
	Database  string
	Schema    string

	// DSN is used verbatim by the postgres driver.
	DSN string
}

// MongoConfig holds the document store settings.
type MongoConfig struct {
	URI      string
	Database string
}

// CacheConfig holds the query cache settings.
type CacheConfig struct {
	Backend       string
	RedisURL      string
	Prefix        string
	OpTimeout     time.Duration
	MemorySize    int
	BadgerPath    string
	TimeseriesTTL time.Duration
}

// KafkaConfig holds the comment event settings. Publishing is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers       []string
	CommentsTopic string
}

// Config holds all API service settings, populated from environment variables.
type Config struct {
	Warehouse WarehouseConfig
	Mongo     MongoConfig
	Cache     CacheConfig
	Kafka     KafkaConfig

	HTTPAddr        string
	Debug           bool
	SecretKey       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// DashboardConfig holds the dashboard settings.
type DashboardConfig struct {
	HTTPAddr        string
	APIBase         string
	Timeout         time.Duration
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// DefaultSecretKey is the placeholder shipped in the sample environment.
const DefaultSecretKey = "change-me"

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	warehouse, err := loadWarehouse()
	if err != nil {
		return nil, err
	}

	cache, err := loadCache()
	if err != nil {
		return nil, err
	}

	port := sharedcfg.EnvOrDefault("API_PORT", "8000")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, errors.New("invalid API_PORT")
	}

	cfg := &Config{
		Warehouse: warehouse,
		Mongo: MongoConfig{
			URI:      sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database: sharedcfg.EnvOrDefault("MONGO_DB", "covid_app"),
		},
		Cache: cache,
		Kafka: KafkaConfig{
			Brokers:       sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
			CommentsTopic: sharedcfg.EnvOrDefault("KAFKA_COMMENTS_TOPIC", "covid-comments"),
		},
		HTTPAddr:        net.JoinHostPort(sharedcfg.EnvOrDefault("API_HOST", "0.0.0.0"), port),
		Debug:           os.Getenv("API_DEBUG") == "1",
		SecretKey:       sharedcfg.EnvOrDefault("SECRET_KEY", DefaultSecretKey),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.Mongo.URI == "" {
		return nil, errors.New("MONGO_URI is required")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.CommentsTopic == "" {
		return nil, errors.New("KAFKA_COMMENTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// LoadDashboard reads the dashboard configuration. It needs no warehouse credentials.
func LoadDashboard() (*DashboardConfig, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	timeout, err := parsePositiveDuration("DASH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	port := sharedcfg.EnvOrDefault("DASH_PORT", "8050")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, errors.New("invalid DASH_PORT")
	}

	apiBase := strings.TrimRight(sharedcfg.EnvOrDefault("API_BASE", "http://localhost:8000/api"), "/")
	if apiBase == "" {
		return nil, errors.New("API_BASE is required")
	}

	return &DashboardConfig{
		HTTPAddr:        net.JoinHostPort(sharedcfg.EnvOrDefault("DASH_HOST", "0.0.0.0"), port),
		APIBase:         apiBase,
		Timeout:         timeout,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func loadWarehouse() (WarehouseConfig, error) {
	cfg := WarehouseConfig{
		Driver:    strings.ToLower(sharedcfg.EnvOrDefault("WAREHOUSE_DRIVER", DriverSnowflake)),
		Account:   os.Getenv("SNOWFLAKE_ACCOUNT"),
		User:      os.Getenv("SNOWFLAKE_USER"),
		Password:  os.Getenv("SNOWFLAKE_PASSWORD"),
		Role:      sharedcfg.EnvOrDefault("SNOWFLAKE_ROLE", "SYSADMIN"),
		Warehouse: sharedcfg.EnvOrDefault("SNOWFLAKE_WAREHOUSE", "COVID_WH"),
		Database:  sharedcfg.EnvOrDefault("SNOWFLAKE_DATABASE", "COVID_APP"),
		Schema:    sharedcfg.EnvOrDefault("SNOWFLAKE_SCHEMA", "PUBLIC"),
		DSN:       os.Getenv("WAREHOUSE_DSN"),
	}

	switch cfg.Driver {
	case DriverSnowflake:
		for _, req := range []struct{ name, value string }{
			{"SNOWFLAKE_ACCOUNT", cfg.Account},
			{"SNOWFLAKE_USER", cfg.User},
			{"SNOWFLAKE_PASSWORD", cfg.Password},
		} {
			if req.value == "" {
				return WarehouseConfig{}, fmt.Errorf("%s is required", req.name)
			}
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			return WarehouseConfig{}, errors.New("WAREHOUSE_DSN is required when WAREHOUSE_DRIVER is postgres")
		}
	default:
		return WarehouseConfig{}, fmt.Errorf("unsupported WAREHOUSE_DRIVER %q", cfg.Driver)
	}
	return cfg, nil
}

func loadCache() (CacheConfig, error) {
	opTimeout, err := parsePositiveDuration("CACHE_OP_TIMEOUT", "500ms")
	if err != nil {
		return CacheConfig{}, err
	}
	ttl, err := parsePositiveDuration("TIMESERIES_CACHE_TTL", "1h")
	if err != nil {
		return CacheConfig{}, err
	}

	cfg := CacheConfig{
		Backend:       strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheRedis)),
		RedisURL:      sharedcfg.EnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		Prefix:        sharedcfg.EnvOrDefault("CACHE_PREFIX", "covid"),
		OpTimeout:     opTimeout,
		MemorySize:    parseMemorySize(),
		BadgerPath:    os.Getenv("BADGER_PATH"),
		TimeseriesTTL: ttl,
	}

	switch cfg.Backend {
	case CacheRedis:
		if cfg.RedisURL == "" {
			return CacheConfig{}, errors.New("REDIS_URL is required when CACHE_BACKEND is redis")
		}
	case CacheMemory, CacheBadger:
	default:
		return CacheConfig{}, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseMemorySize() int {
	if s := os.Getenv("CACHE_MEMORY_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
