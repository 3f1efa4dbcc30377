package config

import (
	"fmt"
	"strings"
	"time"

	"refcache/internal/shared/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	ESI       ESIConfig
	Resolver  ResolverConfig
	Market    MarketConfig
	Frontend  FrontendConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig selects the durable layer behind the entity store.
type StorageConfig struct {
	Driver       string
	SQLitePath   string
	CacheVersion string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig addresses a single node, or a cluster when Addrs lists more
// than one node.
type RedisConfig struct {
	URL       string
	Addrs     []string
	Password  string
	DB        int
	KeyPrefix string
}

type ESIConfig struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	BurstSize         int
	Concurrency       int
	SSOClientID       string
	SSOClientSecret   string
	SSOCallbackURL    string
	SSOJWKSURL        string
	AppraisalURL      string
}

type ResolverConfig struct {
	DebounceDelay time.Duration
	MaxWaves      int
	Concurrency   int
}

type MarketConfig struct {
	Enabled        bool
	PriceCacheSize int
}

// FrontendConfig names the browser origins allowed to call the API. URL is
// also where the SSO callback sends the user back to.
type FrontendConfig struct {
	URL            string
	AllowedOrigins []string
	CORSDebug      bool
}

type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	TrustProxy        bool
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Init loads the configuration from the environment (and .env when
// present) and validates it.
func Init() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	config, err := Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return config, nil
}

// Load reads the configuration from the process environment only.
func Load() (*Config, error) {
	config := &Config{
		Server:    loadServerConfig(),
		Storage:   loadStorageConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		ESI:       loadESIConfig(),
		Resolver:  loadResolverConfig(),
		Market:    loadMarketConfig(),
		Frontend:  loadFrontendConfig(),
		Logging:   loadLoggingConfig(),
		RateLimit: loadRateLimitConfig(),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:         utils.GetEnv("SERVER_PORT", "8080"),
		Environment:  utils.GetEnv("ENVIRONMENT", "development"),
		ReadTimeout:  utils.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: utils.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  utils.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:       utils.GetEnv("STORAGE_DRIVER", DriverSQLite),
		SQLitePath:   utils.GetEnv("SQLITE_PATH", "data/refcache.db"),
		CacheVersion: utils.GetEnv("CACHE_VERSION", "1"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            utils.GetEnv("DB_HOST", "localhost"),
		Port:            utils.GetEnv("DB_PORT", "5432"),
		User:            utils.GetEnv("DB_USER", "postgres"),
		Password:        utils.GetEnv("DB_PASSWORD", "postgres"),
		Name:            utils.GetEnv("DB_NAME", "refcache"),
		SSLMode:         utils.GetEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    utils.GetEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    utils.GetEnvInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: utils.GetEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:       utils.GetEnv("REDIS_URL", ""),
		Addrs:     splitList(utils.GetEnv("REDIS_ADDRS", "localhost:6379")),
		Password:  utils.GetEnv("REDIS_PASSWORD", ""),
		DB:        utils.GetEnvInt("REDIS_DB", 0),
		KeyPrefix: utils.GetEnv("REDIS_KEY_PREFIX", "refcache"),
	}
}

func loadESIConfig() ESIConfig {
	return ESIConfig{
		BaseURL:           utils.GetEnv("ESI_BASE_URL", "https://esi.evetech.net/latest"),
		UserAgent:         utils.GetEnv("ESI_USER_AGENT", "refcache/1.0"),
		Timeout:           utils.GetEnvDuration("ESI_TIMEOUT", 30*time.Second),
		RequestsPerSecond: utils.GetEnvFloat("ESI_REQUESTS_PER_SECOND", 20),
		BurstSize:         utils.GetEnvInt("ESI_BURST_SIZE", 40),
		Concurrency:       utils.GetEnvInt("ESI_CONCURRENCY", 8),
		SSOClientID:       utils.GetEnv("EVE_SSO_CLIENT_ID", ""),
		SSOClientSecret:   utils.GetEnv("EVE_SSO_CLIENT_SECRET", ""),
		SSOCallbackURL:    utils.GetEnv("EVE_SSO_CALLBACK_URL", "http://localhost:8080/sso/callback"),
		SSOJWKSURL:        utils.GetEnv("EVE_SSO_JWKS_URL", "https://login.eveonline.com/oauth/jwks"),
		AppraisalURL:      utils.GetEnv("APPRAISAL_URL", ""),
	}
}

func loadResolverConfig() ResolverConfig {
	return ResolverConfig{
		DebounceDelay: utils.GetEnvDuration("RESOLVER_DEBOUNCE", 500*time.Millisecond),
		MaxWaves:      utils.GetEnvInt("RESOLVER_MAX_WAVES", 3),
		Concurrency:   utils.GetEnvInt("RESOLVER_CONCURRENCY", 8),
	}
}

func loadMarketConfig() MarketConfig {
	return MarketConfig{
		Enabled:        utils.GetEnvBool("MARKET_PRICES_ENABLED", true),
		PriceCacheSize: utils.GetEnvInt("MARKET_PRICE_CACHE_SIZE", 20000),
	}
}

func loadFrontendConfig() FrontendConfig {
	url := utils.GetEnv("FRONTEND_URL", "http://localhost:3000")
	return FrontendConfig{
		URL:            url,
		AllowedOrigins: splitList(utils.GetEnv("CORS_ALLOWED_ORIGINS", url)),
		CORSDebug:      utils.GetEnvBool("CORS_DEBUG", false),
	}
}

func loadLoggingConfig() LoggingConfig {
	environment := utils.GetEnv("ENVIRONMENT", "development")

	return LoggingConfig{
		Level:      utils.GetEnv("LOG_LEVEL", "info"),
		JSONFormat: environment == "production",
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           utils.GetEnvBool("RATE_LIMIT_ENABLED", true),
		RequestsPerSecond: utils.GetEnvFloat("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		BurstSize:         utils.GetEnvInt("RATE_LIMIT_BURST_SIZE", 20),
		TrustProxy:        utils.GetEnvBool("RATE_LIMIT_TRUST_PROXY", false),
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of memory, sqlite, postgres, redis (got %q)", c.Storage.Driver)
	}

	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
	}

	if c.Storage.Driver == DriverPostgres && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres driver")
	}

	if c.Storage.Driver == DriverRedis && c.Redis.URL == "" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("REDIS_URL or REDIS_ADDRS is required for the redis driver")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.ESI.BaseURL == "" {
		return fmt.Errorf("ESI_BASE_URL is required")
	}

	if c.Resolver.MaxWaves < 1 {
		return fmt.Errorf("RESOLVER_MAX_WAVES must be at least 1")
	}

	if c.Resolver.DebounceDelay < 0 {
		return fmt.Errorf("RESOLVER_DEBOUNCE must not be negative")
	}

	return nil
}

// SSOConfigured reports whether authenticated ESI calls can be made.
func (c *Config) SSOConfigured() bool {
	return c.ESI.SSOClientID != "" && c.ESI.SSOClientSecret != ""
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
