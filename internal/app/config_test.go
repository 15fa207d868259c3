package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-dms/odyssey-dms/internal/access"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, access.EmptyUnrestricted, cfg.EmptyPolicy())
	assert.Equal(t, time.UTC, cfg.QuotaLocation())
	assert.Equal(t, access.CacheConfig{Size: 10000, TTL: 5 * time.Minute, SharedTTL: 15 * time.Minute}, cfg.AccessCache())
	assert.Equal(t, "odyssey_session", cfg.SessionCookie)
}

func TestLoadConfigAccessOverrides(t *testing.T) {
	t.Setenv("ACCESS_EMPTY_RESTRICTION", "deny")
	t.Setenv("ACCESS_QUOTA_TIMEZONE", "Asia/Jakarta")
	t.Setenv("ACCESS_SHARED_CACHE_TTL", "0s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, access.EmptyDenied, cfg.EmptyPolicy())
	assert.Equal(t, "Asia/Jakarta", cfg.QuotaLocation().String())
	assert.Zero(t, cfg.AccessCache().SharedTTL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"ACCESS_EMPTY_RESTRICTION": "sometimes",
		"ACCESS_QUOTA_TIMEZONE":    "Mars/Olympus",
		"ACCESS_CACHE_SIZE":        "0",
		"LOG_FORMAT":               "xml",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestIsProduction(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsProduction())
	assert.True(t, (&Config{AppEnv: "production"}).IsProduction())
}
