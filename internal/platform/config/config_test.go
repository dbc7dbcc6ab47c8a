package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("CLUSTERIZER_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLUSTERIZER_DATABASE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Address)
	assert.Equal(t, []byte("s3cret"), cfg.Secret)
	assert.Equal(t, 25, cfg.DBMaxConns)
	assert.True(t, cfg.DBAutoMigrate)
	assert.Equal(t, 15*time.Minute, cfg.ReaperInterval)
	assert.Equal(t, "clusterizer:reaper_lock", cfg.ReaperLockKey)
	assert.Contains(t, cfg.DBConnStr, "host=")
}

func TestFromEnv_DatabaseURLWins(t *testing.T) {
	t.Setenv("CLUSTERIZER_SECRET", "s3cret")
	t.Setenv("CLUSTERIZER_DATABASE", "postgres://alias")
	t.Setenv("DATABASE_URL", "postgres://primary")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DBConnStr)
}

func TestFromEnv_DatabaseAlias(t *testing.T) {
	t.Setenv("CLUSTERIZER_SECRET", "s3cret")
	t.Setenv("CLUSTERIZER_DATABASE", "postgres://alias")
	t.Setenv("DATABASE_URL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://alias", cfg.DBConnStr)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLUSTERIZER_SECRET", "s3cret")
	t.Setenv("REAPER_INTERVAL", "30s")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval)
	assert.False(t, cfg.DBAutoMigrate)
	assert.Equal(t, 25, cfg.DBMaxConns)
}

func TestFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("CLUSTERIZER_SECRET", "")

	_, err := FromEnv()
	assert.Error(t, err)
}
