// Package config loads service configuration from config.yaml and NCFPOS_* env vars.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Configuration is the full service configuration.
type Configuration struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Postgres    PostgresConfig    `mapstructure:"postgres" validate:"required"`
	Logging     LoggingConfig     `mapstructure:"logging" validate:"required"`
	Auth        AuthConfig        `mapstructure:"auth" validate:"required"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Sales       SalesConfig       `mapstructure:"sales"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type PostgresConfig struct {
	DSN         string        `mapstructure:"dsn" validate:"required"`
	MaxConns    int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns    int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gte=0"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer    string `mapstructure:"issuer"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type SalesConfig struct {
	IssueRetries    uint64        `mapstructure:"issue_retries" validate:"lte=10"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gte=0"`
}

type WorkerConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	AuditInterval   time.Duration `mapstructure:"audit_interval" validate:"gt=0"`
	// MetricsAddress serves the worker's /metrics; empty disables it.
	MetricsAddress string `mapstructure:"metrics_address"`
}

// NewConfig reads config.yaml when present, overlays NCFPOS_* environment
// variables and validates the result.
func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ncfpos")

	v.SetEnvPrefix("NCFPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Configuration, error) {
	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// setDefaults registers every key, which also lets AutomaticEnv pick up
// env-only values during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 20)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.lock_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("sales.issue_retries", 3)
	v.SetDefault("sales.initial_interval", 50*time.Millisecond)
	v.SetDefault("sales.max_interval", time.Second)

	v.SetDefault("worker.cleanup_interval", time.Hour)
	v.SetDefault("worker.audit_interval", 15*time.Minute)
	v.SetDefault("worker.metrics_address", ":9091")
}
