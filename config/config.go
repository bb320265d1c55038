package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	Log        LogConfig              `mapstructure:"log"`
	Settlement SettlementConfig       `mapstructure:"settlement"`
	Chains     map[string]ChainPolicy `mapstructure:"chains"`
	Monitor    MonitorConfig          `mapstructure:"monitor"`
	Webhook    WebhookConfig          `mapstructure:"webhook"`
	Sweeper    SweeperConfig          `mapstructure:"sweeper"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// SettlementConfig carries the gateway-wide payment classification policy.
// Per-chain overrides live in Chains.
type SettlementConfig struct {
	DefaultTolerance     float64 `mapstructure:"default_tolerance"`     // fraction, e.g. 0.01
	DefaultConfirmations uint32  `mapstructure:"default_confirmations"` // min confirmations before a payment settles
	ReopenExpired        bool    `mapstructure:"reopen_expired"`        // late payment may move EXPIRED -> PAID
}

// ChainPolicy overrides settlement policy for a single chain.
// Zero values fall back to SettlementConfig defaults.
type ChainPolicy struct {
	RequiredConfirmations uint32  `mapstructure:"required_confirmations"`
	Tolerance             float64 `mapstructure:"tolerance"`
}

// ConfirmationsFor returns the confirmation threshold for a chain.
func (c *Config) ConfirmationsFor(chain string) uint32 {
	if p, ok := c.Chains[chain]; ok && p.RequiredConfirmations > 0 {
		return p.RequiredConfirmations
	}
	return c.Settlement.DefaultConfirmations
}

// ToleranceFor returns the settlement tolerance fraction for a chain.
func (c *Config) ToleranceFor(chain string) float64 {
	if p, ok := c.Chains[chain]; ok && p.Tolerance > 0 {
		return p.Tolerance
	}
	return c.Settlement.DefaultTolerance
}

// MonitorConfig authenticates the inbound blockchain-monitoring collaborator.
// An empty secret disables signature verification (local development only).
type MonitorConfig struct {
	Secret string `mapstructure:"secret"`
}

// WebhookConfig drives the outbox dispatcher.
type WebhookConfig struct {
	SinkURL        string        `mapstructure:"sink_url"` // downstream merchant-webhook dispatcher endpoint
	Secret         string        `mapstructure:"secret"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	LeaseDuration  time.Duration `mapstructure:"lease_duration"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SweeperConfig drives the invoice expiry sweep.
type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CPG_ (Crypto Payment Gateway).
// Nested keys use underscore: CPG_DATABASE_HOST, CPG_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "crypto_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("settlement.default_tolerance", 0.01)
	v.SetDefault("settlement.default_confirmations", 6)
	v.SetDefault("settlement.reopen_expired", false)
	v.SetDefault("chains.bitcoin.required_confirmations", 2)
	v.SetDefault("chains.ethereum.required_confirmations", 12)
	v.SetDefault("chains.tron.required_confirmations", 19)
	v.SetDefault("monitor.secret", "")
	v.SetDefault("webhook.sink_url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.poll_interval", "5s")
	v.SetDefault("webhook.batch_size", 20)
	v.SetDefault("webhook.max_attempts", 6)
	v.SetDefault("webhook.lease_duration", "1m")
	v.SetDefault("webhook.request_timeout", "10s")
	v.SetDefault("sweeper.interval", "30s")
	v.SetDefault("sweeper.batch_size", 100)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CPG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CPG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
