// Package config loads process configuration from a YAML file and LEDGER_* environment variables.
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
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Log         LogConfig        `mapstructure:"log"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Settlement  SettlementConfig `mapstructure:"settlement"`
	Ledger      LedgerConfig     `mapstructure:"ledger"`
	Auth        AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// IdempotencyTTL is how long an X-Idempotency-Key response is replayed.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StorageConfig selects the persistence collaborator.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`

	// SnapshotPath makes the memory store durable across restarts. Empty keeps it volatile.
	SnapshotPath string `mapstructure:"snapshot_path"`

	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`

	// AutoMigrate applies pending Postgres migrations at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	ViewTTL  time.Duration `mapstructure:"view_ttl"`
}

type SettlementConfig struct {
	// RunAt is the local wall-clock time ("HH:MM") of the scheduled daily run.
	RunAt    string        `mapstructure:"run_at"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	LockKey  string        `mapstructure:"lock_key"`
	Timezone string        `mapstructure:"timezone"`

	// FenceTTL bounds how long a crashed settlement keeps commands of other
	// processes out before its fence lapses.
	FenceTTL time.Duration `mapstructure:"fence_ttl"`
}

type LedgerConfig struct {
	// AllowOverpayment accepts payments larger than the outstanding balance.
	AllowOverpayment bool   `mapstructure:"allow_overpayment"`
	DefaultRoute     string `mapstructure:"default_route"`
}

type AuthConfig struct {
	// JWTSecret verifies operator tokens. Empty disables authentication (local single-user mode).
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`

	// TokenTTL bounds tokens issued by ledgerctl.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// Load reads configuration from path (directory holding config.yaml) or env only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := time.Parse("15:04", c.Settlement.RunAt); err != nil {
		return fmt.Errorf("settlement.run_at: %w", err)
	}
	if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
		return fmt.Errorf("settlement.timezone: %w", err)
	}
	if c.Settlement.FenceTTL <= 0 {
		return errors.New("settlement.fence_ttl must be positive")
	}
	return nil
}

// RequireSharedStorage checks the storage of a process that settles beside
// the server, such as the worker. The memory store is private to one process
// and its snapshot file has a single writer, so only postgres qualifies.
func (c Config) RequireSharedStorage() error {
	if c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver %q cannot be shared with the server process, use postgres", c.Storage.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.idempotency_ttl", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.snapshot_path", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.min_conns", 1)
	v.SetDefault("storage.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.view_ttl", "5m")

	v.SetDefault("settlement.run_at", "23:30")
	v.SetDefault("settlement.lock_ttl", "2m")
	v.SetDefault("settlement.lock_key", "routeledger:settlement")
	v.SetDefault("settlement.timezone", "Local")
	v.SetDefault("settlement.fence_ttl", "15m")

	v.SetDefault("ledger.allow_overpayment", false)
	v.SetDefault("ledger.default_route", "default")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "routeledger")
	v.SetDefault("auth.token_ttl", "12h")
}
