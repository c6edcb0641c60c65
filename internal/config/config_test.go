package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, k := range []string{KeyDataDir, KeySigningKey, KeyRedactionConfig, KeyWorkers, KeyMaxBodyBytes, KeyAPIKeys, KeyRateLimit, KeyRateBurst, KeyRetentionDays} {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(k), "")
	}
	viper.Reset()
	SetDefaults()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.UsingDefaultSigningKey(), "should report default key when none is set")
	assert.Len(t, cfg.SigningKey, 64)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.Empty(t, cfg.APIKeys)
	assert.Empty(t, cfg.RedactionConfig)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, DefaultRateBurst, cfg.RateBurst)
	assert.Zero(t, cfg.RetentionDays)
}

func TestLoad_ExplicitValues(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("PIIREDACT_DATA_DIR", dir)
	t.Setenv("PIIREDACT_SIGNING_KEY", "my-signing-key-at-least-32-chars!")
	t.Setenv("PIIREDACT_WORKERS", "3")
	t.Setenv("PIIREDACT_API_KEYS", "alpha, beta,,")
	t.Setenv("PIIREDACT_REDACTION_CONFIG", "/etc/piiredact/redaction.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.APIKeys)
	assert.Equal(t, "/etc/piiredact/redaction.yaml", cfg.RedactionConfig)
}

func TestLoad_InvalidSigningKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("PIIREDACT_SIGNING_KEY", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key")
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestLoad_InvalidWorkers(t *testing.T) {
	resetViper(t)
	t.Setenv("PIIREDACT_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be positive")
}

func TestDeriveDefaultKey_Deterministic(t *testing.T) {
	a := deriveDefaultKey("/data", "report-signing")
	b := deriveDefaultKey("/data", "report-signing")
	c := deriveDefaultKey("/other", "report-signing")
	d := deriveDefaultKey("/data", "other-purpose")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}

func TestLoad_NegativeRetention(t *testing.T) {
	resetViper(t)
	t.Setenv("PIIREDACT_REPORT_RETENTION_DAYS", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_retention_days")
}

func TestConfig_Paths(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: dir + "/nested"}
	assert.Equal(t, dir+"/nested/reports.db", cfg.ReportsDBPath())
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, dir+"/nested")
}
