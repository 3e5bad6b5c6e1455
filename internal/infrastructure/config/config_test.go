package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerEnv = []string{
	"LEDGER_APP_NAME",
	"LEDGER_APP_ENV",
	"LEDGER_DATABASE_HOST",
	"LEDGER_DATABASE_PORT",
	"LEDGER_DATABASE_PASSWORD",
	"LEDGER_DATABASE_SSLMODE",
	"LEDGER_DATABASE_MAX_OPEN_CONNS",
	"LEDGER_DATABASE_MAX_IDLE_CONNS",
	"LEDGER_LOCK_DRIVER",
	"LEDGER_LOCK_TTL",
	"LEDGER_RECALC_MODE",
	"LEDGER_OUTBOX_MAX_ATTEMPTS",
	"LEDGER_OUTBOX_BASE_BACKOFF",
	"LEDGER_OUTBOX_SWEEPER_ENABLED",
	"LEDGER_PUBSUB_PROJECT_ID",
	"LEDGER_IDEMPOTENCY_IN_PROGRESS_TIMEOUT",
}

// clearEnv blanks every variable the tests touch; viper ignores empty values
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range ledgerEnv {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledgercore", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "ledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "redis", cfg.Lock.Driver)
		assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
		assert.Equal(t, 5*time.Minute, cfg.Idempotency.InProgressTimeout)
		assert.Equal(t, 8, cfg.Outbox.MaxAttempts)
		assert.True(t, cfg.Outbox.SweeperEnabled)
		assert.True(t, cfg.PubSub.Ordering)
		assert.False(t, cfg.PubSub.Enabled())
		assert.Equal(t, "sync", cfg.Recalc.Mode)
	})

	t.Run("loads values from environment variables with LEDGER prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_APP_NAME", "ledger-test")
		t.Setenv("LEDGER_DATABASE_HOST", "db.internal")
		t.Setenv("LEDGER_DATABASE_PORT", "6543")
		t.Setenv("LEDGER_LOCK_DRIVER", "memory")
		t.Setenv("LEDGER_LOCK_TTL", "45s")
		t.Setenv("LEDGER_RECALC_MODE", "both")
		t.Setenv("LEDGER_OUTBOX_SWEEPER_ENABLED", "false")
		t.Setenv("LEDGER_PUBSUB_PROJECT_ID", "acme")
		t.Setenv("LEDGER_IDEMPOTENCY_IN_PROGRESS_TIMEOUT", "90s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger-test", cfg.App.Name)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6543, cfg.Database.Port)
		assert.Equal(t, "memory", cfg.Lock.Driver)
		assert.Equal(t, 45*time.Second, cfg.Lock.TTL)
		assert.Equal(t, "both", cfg.Recalc.Mode)
		assert.False(t, cfg.Outbox.SweeperEnabled)
		assert.True(t, cfg.PubSub.Enabled())
		assert.Equal(t, 90*time.Second, cfg.Idempotency.InProgressTimeout)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "5")
		t.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
	})

	t.Run("rejects unknown lock driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_LOCK_DRIVER", "zookeeper")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock.driver")
	})

	t.Run("rejects unknown recalc mode", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_RECALC_MODE", "later")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recalc.mode")
	})

	t.Run("rejects base backoff above max backoff", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_OUTBOX_BASE_BACKOFF", "1h")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base_backoff")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	production := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEDGER_APP_ENV", "production")
		t.Setenv("LEDGER_DATABASE_PASSWORD", "s3cret")
		t.Setenv("LEDGER_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		production(t)
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		production(t)
		t.Setenv("LEDGER_DATABASE_PASSWORD", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		production(t)
		t.Setenv("LEDGER_DATABASE_SSLMODE", "disable")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})

	t.Run("refuses the noop locker in production", func(t *testing.T) {
		production(t)
		t.Setenv("LEDGER_LOCK_DRIVER", "noop")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "noop")
	})

	t.Run("async recalc needs pubsub in production", func(t *testing.T) {
		production(t)
		t.Setenv("LEDGER_RECALC_MODE", "async")
		_, err := Load()
		require.Error(t, err)

		t.Setenv("LEDGER_PUBSUB_PROJECT_ID", "acme")
		_, err = Load()
		assert.NoError(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "ledger", Password: "pw", DBName: "ledger", SSLMode: "disable"}
		assert.Equal(t, "postgres://ledger:pw@localhost:5432/ledger?sslmode=disable", cfg.DSN())
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss:w/rd", DBName: "ledger", SSLMode: "require"}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "p%40ss%3Aw%2Frd")
		assert.Contains(t, dsn, "sslmode=require")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
