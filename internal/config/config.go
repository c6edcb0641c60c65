// Package config holds operator-level configuration for a piiredact
// installation and the redaction configuration consumed by the engine.
//
// Operator config (this file) covers where state lives and how the service
// runs: data directory, report signing key, the redaction config path,
// worker count, request body limit and API keys. It is set via env vars
// (PIIREDACT_*) or piiredact.config.yaml.
//
// Redaction config (redaction.go) describes what gets redacted: sectors,
// audit hashing and audit logging. It is a JSON or YAML file merged over the
// embedded defaults.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/crypto/hkdf"

	"github.com/dativo-io/piiredact/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the PIIREDACT_ prefix
// (e.g. "signing_key" → PIIREDACT_SIGNING_KEY) and to a YAML field in
// piiredact.config.yaml.
const (
	KeyDataDir         = "data_dir"
	KeySigningKey      = "signing_key"
	KeyRedactionConfig = "redaction_config"
	KeyWorkers         = "workers"
	KeyMaxBodyBytes    = "max_body_bytes"
	KeyAPIKeys         = "api_keys"
	KeyRateLimit       = "rate_limit"
	KeyRateBurst       = "rate_burst"
	KeyRetentionDays   = "report_retention_days"
)

// EnvPrefix is the prefix for every environment variable read by viper.
const EnvPrefix = "PIIREDACT"

const (
	DefaultMaxBodyBytes = 10 << 20
	DefaultRateLimit    = 20.0
	DefaultRateBurst    = 40
)

// Config holds resolved operator-level configuration.
type Config struct {
	DataDir         string   // Base directory for all state (~/.piiredact)
	SigningKey      string   // HMAC-SHA256 key for report signing (≥32 bytes)
	RedactionConfig string   // Optional path to a JSON/YAML redaction config
	Workers         int      // Parallel workers for row-oriented adapters
	MaxBodyBytes    int64    // Request body limit for serve
	APIKeys         []string // Accepted keys for the HTTP API; empty disables auth
	RateLimit       float64  // Per-caller requests per second for serve
	RateBurst       int
	RetentionDays   int // Stored reports older than this are purged by serve; 0 keeps them forever

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// ReportsDBPath returns the full path to the signed report SQLite database.
func (c *Config) ReportsDBPath() string {
	return filepath.Join(c.DataDir, "reports.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKey logs a warning when the signing key is not explicitly set.
func (c *Config) WarnIfDefaultKey() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default PIIREDACT_SIGNING_KEY; set via env var or config file for production")
	}
}

func init() {
	SetDefaults()
}

// SetDefaults registers the env prefix and default values on the global
// viper instance.
func SetDefaults() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetDefault(KeyWorkers, runtime.NumCPU())
	viper.SetDefault(KeyMaxBodyBytes, DefaultMaxBodyBytes)
	viper.SetDefault(KeyRateLimit, DefaultRateLimit)
	viper.SetDefault(KeyRateBurst, DefaultRateBurst)
}

// Load reads configuration from viper (env vars, config file, defaults) and
// returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		SigningKey:      viper.GetString(KeySigningKey),
		RedactionConfig: viper.GetString(KeyRedactionConfig),
		Workers:         viper.GetInt(KeyWorkers),
		MaxBodyBytes:    viper.GetInt64(KeyMaxBodyBytes),
		APIKeys:         splitKeys(viper.GetString(KeyAPIKeys)),
		RateLimit:       viper.GetFloat64(KeyRateLimit),
		RateBurst:       viper.GetInt(KeyRateBurst),
		RetentionDays:   viper.GetInt(KeyRetentionDays),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "report-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".piiredact"
	}
	return filepath.Join(home, ".piiredact")
}

// splitKeys accepts a comma-separated list and drops blanks.
func splitKeys(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a purpose label via HKDF-SHA256. It is not a
// secret; it only lets reports be signed on a fresh install with a
// per-machine key.
func deriveDefaultKey(dataDir, purpose string) string {
	r := hkdf.New(sha256.New, []byte(dataDir), []byte("piiredact"), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*hash-size bytes of output.
		panic(fmt.Sprintf("deriving default key: %v", err))
	}
	return hex.EncodeToString(key)
}

func (c *Config) validate() error {
	if _, err := cryptoutil.DecodeKey(c.SigningKey); err != nil {
		return fmt.Errorf("signing_key: %w; set %s_SIGNING_KEY", err, EnvPrefix)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("report_retention_days must not be negative")
	}
	return nil
}
