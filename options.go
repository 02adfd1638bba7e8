package confidis

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	listenAddr         string
	walDir             string
	snapshotDSN        string
	adminToken         string
	setRateLimit       float64
	setRateLimitBurst  int
	jwtExpiration      time.Duration
	logger             *slog.Logger
	version            string
	similarityStrategy SimilarityStrategy
	eventHooks         []EventHook
}

// WithListenAddr overrides the TCP listen address from config (CONFIDIS_LISTEN_ADDR env var).
func WithListenAddr(addr string) Option {
	return func(o *resolvedOptions) { o.listenAddr = addr }
}

// WithWALDir overrides the write-ahead log directory from config (CONFIDIS_WAL_DIR env var).
func WithWALDir(dir string) Option {
	return func(o *resolvedOptions) { o.walDir = dir }
}

// WithSnapshotDSN overrides the Postgres connection string used for periodic
// snapshot persistence (CONFIDIS_SNAPSHOT_DSN env var). Snapshotting is
// disabled when neither is set.
func WithSnapshotDSN(dsn string) Option {
	return func(o *resolvedOptions) { o.snapshotDSN = dsn }
}

// WithAdminToken sets the plaintext admin token gating the CONFIGURE
// command. It is hashed once at startup; the plaintext is never retained.
func WithAdminToken(token string) Option {
	return func(o *resolvedOptions) { o.adminToken = token }
}

// WithSetRateLimit caps Set commands to rate tokens/sec per source, with
// burst capacity burst. A rate of 0 keeps the configured
// CONFIDIS_SET_RATE_LIMIT_PER_SECOND / _BURST values (default 20/s, burst 50).
func WithSetRateLimit(rate float64, burst int) Option {
	return func(o *resolvedOptions) { o.setRateLimit = rate; o.setRateLimitBurst = burst }
}

// WithJWTExpiration sets how long an issued Believe attestation remains valid.
func WithJWTExpiration(d time.Duration) Option {
	return func(o *resolvedOptions) { o.jwtExpiration = d }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSimilarityStrategy replaces the engine's active comparison strategy,
// bypassing the textual CONFIGURE command. Only the last call wins.
func WithSimilarityStrategy(s SimilarityStrategy) Option {
	return func(o *resolvedOptions) { o.similarityStrategy = s }
}

// WithEventHook registers a hook to receive source/question lifecycle
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}
