package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWithNoEnvOrFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/vtagger.db", cfg.DatabasePath)
	assert.Equal(t, 8000, cfg.APIPort)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 1000, cfg.BatchSize)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("VTAGGER_API_PORT", "9090")
	t.Setenv("VTAGGER_BATCH_SIZE", "250")
	t.Setenv("VTAGGER_DATABASE_PATH", "/tmp/custom.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
}

func TestLoad_NonPositiveBatchSizeIsRejected(t *testing.T) {
	t.Setenv("VTAGGER_BATCH_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)
}
