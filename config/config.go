package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Shopify     ShopifyConfig     `mapstructure:"shopify"`
	Backfill    BackfillConfig    `mapstructure:"backfill"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	PublicURL       string        `mapstructure:"public_url"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
	// Sent as runtime parameters on every connection.
	ApplicationName  string        `mapstructure:"application_name"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	ClientName  string        `mapstructure:"client_name"`
	PoolSize    int           `mapstructure:"pool_size"` // 0 keeps the go-redis default
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// ShopifyConfig tunes the Admin API client.
type ShopifyConfig struct {
	APIVersion       string        `mapstructure:"api_version"`
	Scheme           string        `mapstructure:"scheme"`
	PageSize         int           `mapstructure:"page_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	NetworkBackoff   time.Duration `mapstructure:"network_backoff"`
	PageDelay        time.Duration `mapstructure:"page_delay"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// BackfillConfig controls the job poller.
type BackfillConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	InProcess    bool          `mapstructure:"in_process"` // run the poller inside the API process
	Notify       string        `mapstructure:"notify"`     // none, memory, redis
	QueueKey     string        `mapstructure:"queue_key"`
}

type WebhookConfig struct {
	Secret             string        `mapstructure:"secret"`
	BypassSignature    bool          `mapstructure:"bypass_signature"` // development only
	DedupByPayloadHash bool          `mapstructure:"dedup_by_payload_hash"`
	DedupTTL           time.Duration `mapstructure:"dedup_ttl"`
	RateLimit          int           `mapstructure:"rate_limit"` // per shop per window, 0 disables
	RateWindow         time.Duration `mapstructure:"rate_window"`
}

type CredentialsConfig struct {
	EncryptionEnabled bool   `mapstructure:"encryption_enabled"`
	Key               string `mapstructure:"key"` // base64 32-byte key for AES-256
}

// AuthConfig configures operator JWTs. An empty secret disables auth on the backfill API.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Expiry    time.Duration `mapstructure:"expiry"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.EncryptionEnabled && c.Credentials.Key == "" {
		errs = append(errs, errors.New("credentials.key is required when encryption is enabled"))
	}
	if c.Backfill.PollInterval <= 0 {
		errs = append(errs, errors.New("backfill.poll_interval must be positive"))
	}
	if c.Shopify.MaxAttempts < 1 {
		errs = append(errs, errors.New("shopify.max_attempts must be at least 1"))
	}
	switch c.Backfill.Notify {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("backfill.notify: unknown mode %q", c.Backfill.Notify))
	}
	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: INGEST_.
// Nested keys use underscore: INGEST_DATABASE_HOST, INGEST_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.max_body_bytes", 2<<20)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "shop_ingest")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("database.application_name", "shop-ingest")
	v.SetDefault("database.statement_timeout", "30s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.client_name", "shop-ingest")
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("shopify.api_version", "2023-10")
	v.SetDefault("shopify.scheme", "https")
	v.SetDefault("shopify.page_size", 250)
	v.SetDefault("shopify.max_attempts", 3)
	v.SetDefault("shopify.rate_limit_backoff", "500ms")
	v.SetDefault("shopify.network_backoff", "200ms")
	v.SetDefault("shopify.page_delay", "100ms")
	v.SetDefault("shopify.request_timeout", "30s")
	v.SetDefault("backfill.poll_interval", "3s")
	v.SetDefault("backfill.batch_size", 50)
	v.SetDefault("backfill.in_process", true)
	v.SetDefault("backfill.notify", "memory")
	v.SetDefault("backfill.queue_key", "ingest:backfill:notify")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.bypass_signature", false)
	v.SetDefault("webhook.dedup_by_payload_hash", true)
	v.SetDefault("webhook.dedup_ttl", "24h")
	v.SetDefault("webhook.rate_limit", 600)
	v.SetDefault("webhook.rate_window", "1m")
	v.SetDefault("credentials.encryption_enabled", false)
	v.SetDefault("credentials.key", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "shop-ingest")
	v.SetDefault("auth.expiry", "24h")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: INGEST_DATABASE_HOST -> database.host
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
