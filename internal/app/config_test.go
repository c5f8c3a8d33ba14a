package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/grni")
	t.Setenv("APP_ENV", "")
	t.Setenv("GRNI_SWEEP_INTERVAL", "")
	t.Setenv("DB_MAX_CONNS", "")

	cfg, err := LoadConfig(5)
	require.NoError(t, err)
	assert.True(t, cfg.Development())
	assert.Equal(t, 5, cfg.DBMaxConns)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, "random", cfg.OwnerStrategy)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/grni")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_MAX_CONNS", "40")
	t.Setenv("GRNI_SWEEP_INTERVAL", "15m")
	t.Setenv("GRNI_RELAY_BATCH", "not-a-number")

	cfg, err := LoadConfig(5)
	require.NoError(t, err)
	assert.False(t, cfg.Development())
	assert.Equal(t, 40, cfg.DBMaxConns)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 50, cfg.RelayBatch)
}

func TestLoadConfig_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadConfig(5)
	assert.EqualError(t, err, "DATABASE_URL is required")
}
