package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStorageConfigFromEnv_RequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	_, err := LoadStorageConfigFromEnv()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "DB_PASSWORD", verr.Field)
}

func TestLoadStorageConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	cfg, err := LoadStorageConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "nexusmem", cfg.Database)
	assert.Equal(t, 25, cfg.MaxOpenConns)
}

func TestStorageConfig_Validate_MaxIdleExceedsMaxOpen(t *testing.T) {
	cfg := &StorageConfig{Password: "x", MaxOpenConns: 5, MaxIdleConns: 10}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestStorageConfig_DSN(t *testing.T) {
	cfg := &StorageConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
