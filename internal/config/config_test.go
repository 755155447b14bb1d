package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("SEQUENCE_TIMEZONE", "Asia/Manila")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, "sarisari-pos", cfg.ServiceName)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", loc.String())
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("SEQUENCE_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	require.Error(t, err)
}
