package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Gleif     GleifConfig
	IsinDB    IsinDBConfig  `mapstructure:"isindb"`
	Cache     CacheConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Vault     VaultConfig
	Audit     AuditConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Tracing   TracingConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"` // SECURITY: Empty = no CORS, explicit origins only
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
}

// GleifConfig holds settings for the GLEIF LEI records API
type GleifConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	BatchSize          int           `mapstructure:"batch_size"`
	PageSize           int           `mapstructure:"page_size"`
	MaxPages           int           `mapstructure:"max_pages"`
	RetryCount         int           `mapstructure:"retry_count"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name"`
}

// IsinDBConfig holds settings for the CUSIP/SEDOL to ISIN conversion site
type IsinDBConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	UserAgent          string        `mapstructure:"user_agent"`
	CusipPrefixes      []string      `mapstructure:"cusip_prefixes"`
	SedolPrefixes      []string      `mapstructure:"sedol_prefixes"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name"`
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	LeiCapacity  int `mapstructure:"lei_capacity"`
	IsinCapacity int `mapstructure:"isin_capacity"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Database           string        `mapstructure:"database"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	MigrateOnStart     bool          `mapstructure:"migrate_on_start"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSize           int           `mapstructure:"pool_size"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	LeiTTL             time.Duration `mapstructure:"lei_ttl"`
	IsinTTL            time.Duration `mapstructure:"isin_ttl"`
	CircuitBreakerName string        `mapstructure:"circuit_breaker_name"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	LookupTopic        string   `mapstructure:"lookup_topic"`
	RequiredAcks       int      `mapstructure:"required_acks"`
	EnableIdempotent   bool     `mapstructure:"enable_idempotent"`
	BufferSize         int      `mapstructure:"buffer_size"`
	CircuitBreakerName string   `mapstructure:"circuit_breaker_name"`
}

// VaultConfig holds HashiCorp Vault settings for secret resolution
type VaultConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Address    string        `mapstructure:"address"`
	Token      string        `mapstructure:"token"`
	SecretPath string        `mapstructure:"secret_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AuditConfig holds lookup event signing settings
type AuditConfig struct {
	HMACSecret string `mapstructure:"hmac_secret"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	JWTPublicKeyPath string   `mapstructure:"jwt_public_key_path"`
	JWTPublicKeyPEM  string   `mapstructure:"jwt_public_key_pem"`
	JWTIssuer        string   `mapstructure:"jwt_issuer"`
	JWTAudience      []string `mapstructure:"jwt_audience"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	PerClientPerMinute     int  `mapstructure:"per_client_per_minute"`
	PerIPPerMinute         int  `mapstructure:"per_ip_per_minute"`
	BurstSize              int  `mapstructure:"burst_size"`
	EnableInMemoryFallback bool `mapstructure:"enable_inmemory_fallback"`
}

// TracingConfig holds OpenTelemetry tracing settings
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level           string `mapstructure:"level"`
	Format          string `mapstructure:"format"` // json or console
	OutputPath      string `mapstructure:"output_path"`
	MaxSizeMB       int    `mapstructure:"max_size_mb"`
	MaxBackups      int    `mapstructure:"max_backups"`
	MaxAgeDays      int    `mapstructure:"max_age_days"`
	Compress        bool   `mapstructure:"compress"`
	EnableRequestID bool   `mapstructure:"enable_request_id"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// REFDATA_SERVICE_GLEIF_BASE_URL -> gleif.base_url
	v.SetEnvPrefix("REFDATA_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/refdata-service/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 45*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_batch_size", 1000)
	v.SetDefault("server.cors_allowed_origins", []string{})

	// GLEIF defaults
	v.SetDefault("gleif.base_url", "https://api.gleif.org/api/v1")
	v.SetDefault("gleif.timeout", 20*time.Second)
	v.SetDefault("gleif.requests_per_second", 1.0)
	v.SetDefault("gleif.burst", 5)
	v.SetDefault("gleif.batch_size", 200)
	v.SetDefault("gleif.page_size", 100)
	v.SetDefault("gleif.max_pages", 10)
	v.SetDefault("gleif.retry_count", 2)
	v.SetDefault("gleif.circuit_breaker_name", "gleif")

	// ISIN conversion defaults
	v.SetDefault("isindb.enabled", true)
	v.SetDefault("isindb.base_url", "https://www.isindb.com")
	v.SetDefault("isindb.timeout", 20*time.Second)
	v.SetDefault("isindb.requests_per_second", 0.5)
	v.SetDefault("isindb.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")
	v.SetDefault("isindb.cusip_prefixes", []string{"US", "CA", "BM"})
	v.SetDefault("isindb.sedol_prefixes", []string{"GB", "IE"})
	v.SetDefault("isindb.circuit_breaker_name", "isindb")

	// In-process cache defaults
	v.SetDefault("cache.lei_capacity", 1_000_000)
	v.SetDefault("cache.isin_capacity", 500_000)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "refdata")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 1*time.Minute)
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("database.circuit_breaker_name", "postgres")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.lei_ttl", 24*time.Hour)
	v.SetDefault("redis.isin_ttl", 7*24*time.Hour)
	v.SetDefault("redis.circuit_breaker_name", "redis")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.lookup_topic", "refdata-lookup-events")
	v.SetDefault("kafka.required_acks", -1) // WaitForAll
	v.SetDefault("kafka.enable_idempotent", true)
	v.SetDefault("kafka.buffer_size", 10000)
	v.SetDefault("kafka.circuit_breaker_name", "kafka")

	// Vault defaults
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.secret_path", "secret/data/refdata-service")
	v.SetDefault("vault.timeout", 10*time.Second)

	// Audit and auth defaults; secrets come from env or Vault
	v.SetDefault("audit.hmac_secret", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_public_key_path", "")
	v.SetDefault("auth.jwt_public_key_pem", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.jwt_audience", []string{})

	// Rate limit defaults
	v.SetDefault("ratelimit.per_client_per_minute", 600)
	v.SetDefault("ratelimit.per_ip_per_minute", 120)
	v.SetDefault("ratelimit.burst_size", 20)
	v.SetDefault("ratelimit.enable_inmemory_fallback", true)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "refdata-service")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "refdata")
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.enable_request_id", true)
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Gleif.BaseURL == "" {
		return fmt.Errorf("gleif base url is required")
	}

	// GLEIF rejects filter[lei] lists longer than 200 codes
	if cfg.Gleif.BatchSize < 1 || cfg.Gleif.BatchSize > 200 {
		return fmt.Errorf("gleif batch_size must be between 1 and 200")
	}
	if cfg.Gleif.PageSize < 1 || cfg.Gleif.PageSize > 200 {
		return fmt.Errorf("gleif page_size must be between 1 and 200")
	}
	if cfg.Gleif.RequestsPerSecond <= 0 {
		return fmt.Errorf("gleif requests_per_second must be positive")
	}

	if cfg.IsinDB.Enabled && cfg.IsinDB.BaseURL == "" {
		return fmt.Errorf("isindb base url is required when isindb is enabled")
	}

	if cfg.Cache.LeiCapacity < 1 || cfg.Cache.IsinCapacity < 1 {
		return fmt.Errorf("cache capacities must be positive")
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		// SECURITY: Require SSL for database connections
		if cfg.Database.SSLMode == "" || cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("database SSL mode must be enabled (require, verify-ca, or verify-full)")
		}
	}

	if cfg.Vault.Enabled && cfg.Vault.Address == "" {
		return fmt.Errorf("vault address is required when vault is enabled")
	}

	// With Vault enabled the secret may be resolved after Load
	if cfg.Audit.HMACSecret == "" && !cfg.Vault.Enabled {
		return fmt.Errorf("audit HMAC secret is required")
	}
	if cfg.Audit.HMACSecret != "" && len(cfg.Audit.HMACSecret) < 32 {
		return fmt.Errorf("audit HMAC secret must be at least 32 characters for security")
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTPublicKeyPath == "" && cfg.Auth.JWTPublicKeyPEM == "" && !cfg.Vault.Enabled {
		return fmt.Errorf("jwt public key is required when auth is enabled")
	}

	if cfg.RateLimit.PerClientPerMinute <= 0 {
		return fmt.Errorf("per_client_per_minute rate limit must be positive")
	}
	if cfg.RateLimit.PerIPPerMinute <= 0 {
		return fmt.Errorf("per_ip_per_minute rate limit must be positive")
	}
	if cfg.RateLimit.PerClientPerMinute > 100000 {
		return fmt.Errorf("per_client_per_minute rate limit too high (max 100000)")
	}
	if cfg.RateLimit.PerIPPerMinute > 10000 {
		return fmt.Errorf("per_ip_per_minute rate limit too high (max 10000)")
	}

	if cfg.Server.MaxBatchSize < 1 {
		return fmt.Errorf("server max_batch_size must be positive")
	}

	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCORSAllowedOrigins returns the configured CORS allowed origins
// SECURITY: Returns empty slice if not configured (no CORS allowed - most secure default)
func (c *Config) GetCORSAllowedOrigins() []string {
	if len(c.Server.CORSAllowedOrigins) == 0 {
		return []string{}
	}
	return c.Server.CORSAllowedOrigins
}
