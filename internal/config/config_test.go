package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAddr, EnvDataFile, EnvDatabaseURL, EnvRedisAddr, EnvLogLevel, EnvLockTTL} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAddr, ":9090")
	t.Setenv(EnvDatabaseURL, "postgres://ledger@localhost/ledger")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLockTTL, "3s")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Addr)
	assert.Equal(t, "data.json", c.DataFile)
	assert.Equal(t, "postgres://ledger@localhost/ledger", c.DatabaseURL)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 3*time.Second, c.LockTTL)
}

func TestLoadInvalidTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLockTTL, "soon")
	_, err := Load()
	assert.ErrorContains(t, err, EnvLockTTL)

	t.Setenv(EnvLockTTL, "-1s")
	_, err = Load()
	assert.Error(t, err)
}
