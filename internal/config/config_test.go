package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := newViper()
	v.Set("postgres.dsn", "postgres://localhost/ncfpos")
	v.Set("auth.jwt_secret", "0123456789abcdef")

	cfg, err := load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Idempotency.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, uint64(3), cfg.Sales.IssueRetries)
	assert.Equal(t, 15*time.Minute, cfg.Worker.AuditInterval)
}

func TestLoad_RequiresDSNAndSecret(t *testing.T) {
	_, err := load(newViper())
	assert.Error(t, err)

	v := newViper()
	v.Set("postgres.dsn", "postgres://localhost/ncfpos")
	v.Set("auth.jwt_secret", "short")
	_, err = load(v)
	assert.Error(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	v := newViper()
	v.Set("postgres.dsn", "postgres://localhost/ncfpos")
	v.Set("auth.jwt_secret", "0123456789abcdef")
	v.Set("logging.level", "verbose")

	_, err := load(v)
	assert.Error(t, err)
}

func TestNewConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NCFPOS_POSTGRES_DSN", "postgres://db/ncfpos")
	t.Setenv("NCFPOS_AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("NCFPOS_SALES_ISSUE_RETRIES", "5")
	t.Setenv("NCFPOS_WORKER_CLEANUP_INTERVAL", "30m")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/ncfpos", cfg.Postgres.DSN)
	assert.Equal(t, uint64(5), cfg.Sales.IssueRetries)
	assert.Equal(t, 30*time.Minute, cfg.Worker.CleanupInterval)
}
