// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration for the confidis daemon.
type Config struct {
	// Server settings.
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Command-log settings.
	WALDir           string
	WALSegmentBytes  int64
	IntegrityCadence time.Duration // how often a Merkle root is built over WAL records.

	// Optional point-in-time snapshot persistence.
	SnapshotDSN      string // empty disables Postgres snapshotting.
	SnapshotInterval time.Duration

	// JWT settings (trust attestations issued by Believe).
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration

	// Admin control-port token.
	AdminTokenHash string // Argon2id hash; empty leaves CONFIGURE open to every connection.

	// Rate limiting.
	SetRateLimitPerSecond float64
	SetRateLimitBurst     int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		ListenAddr:        envStr("CONFIDIS_LISTEN_ADDR", ":8420"),
		WALDir:            envStr("CONFIDIS_WAL_DIR", "./data/wal"),
		SnapshotDSN:       envStr("CONFIDIS_SNAPSHOT_DSN", ""),
		JWTPrivateKeyPath: envStr("CONFIDIS_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  envStr("CONFIDIS_JWT_PUBLIC_KEY", ""),
		AdminTokenHash:    envStr("CONFIDIS_ADMIN_TOKEN_HASH", ""),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "confidis"),
		LogLevel:          envStr("CONFIDIS_LOG_LEVEL", "info"),
	}

	var walSegmentMB int
	walSegmentMB, errs = collectInt(errs, "CONFIDIS_WAL_SEGMENT_MB", 64)
	cfg.WALSegmentBytes = int64(walSegmentMB) * 1024 * 1024

	cfg.SetRateLimitBurst, errs = collectInt(errs, "CONFIDIS_SET_RATE_LIMIT_BURST", 50)
	cfg.SetRateLimitPerSecond, errs = collectFloat(errs, "CONFIDIS_SET_RATE_LIMIT_PER_SECOND", 20.0)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)

	cfg.ReadTimeout, errs = collectDuration(errs, "CONFIDIS_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "CONFIDIS_WRITE_TIMEOUT", 30*time.Second)
	cfg.JWTExpiration, errs = collectDuration(errs, "CONFIDIS_JWT_EXPIRATION", 24*time.Hour)
	cfg.IntegrityCadence, errs = collectDuration(errs, "CONFIDIS_INTEGRITY_CADENCE", 5*time.Minute)
	cfg.SnapshotInterval, errs = collectDuration(errs, "CONFIDIS_SNAPSHOT_INTERVAL", 30*time.Second)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float64 env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.WALDir == "" {
		errs = append(errs, errors.New("config: CONFIDIS_WAL_DIR is required"))
	}
	if c.WALSegmentBytes <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_WAL_SEGMENT_MB must be positive"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_WRITE_TIMEOUT must be positive"))
	}
	if c.IntegrityCadence <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_INTEGRITY_CADENCE must be positive"))
	}
	if c.SnapshotDSN != "" && c.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_SNAPSHOT_INTERVAL must be positive when CONFIDIS_SNAPSHOT_DSN is set"))
	}
	if c.SetRateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_SET_RATE_LIMIT_PER_SECOND must be positive"))
	}
	if c.SetRateLimitBurst <= 0 {
		errs = append(errs, errors.New("config: CONFIDIS_SET_RATE_LIMIT_BURST must be positive"))
	}
	if c.JWTPrivateKeyPath != "" {
		if err := validateKeyFile(c.JWTPrivateKeyPath, "CONFIDIS_JWT_PRIVATE_KEY"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.JWTPublicKeyPath != "" {
		if err := validateKeyFile(c.JWTPublicKeyPath, "CONFIDIS_JWT_PUBLIC_KEY"); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// validateKeyFile checks that a key file exists, is readable, is non-empty,
// and has restrictive permissions (owner-only on Unix).
func validateKeyFile(path, envVar string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: %s %q: %w", envVar, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s %q is a directory, expected a file", envVar, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("config: %s %q is empty", envVar, path)
	}
	perm := info.Mode().Perm()
	if perm&0o077 != 0 {
		return fmt.Errorf("config: %s %q has overly permissive mode %04o (expected 0600 or stricter)", envVar, path, perm)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
