// Command confidisd runs the belief-engine daemon: a line-oriented TCP
// server that accepts the textual command language, durably logs every
// accepted command, and dispatches it to a single in-process engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/waoai/confidis/internal/config"
	"github.com/waoai/confidis/internal/frontend"
	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/integrity"
	"github.com/waoai/confidis/internal/ratelimit"
	"github.com/waoai/confidis/internal/storage"
	"github.com/waoai/confidis/internal/telemetry"
	"github.com/waoai/confidis/internal/trust"
	"github.com/waoai/confidis/internal/walog"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger is reconfigured with the real level once config loads; start
	// with info so early failures (bad config) are still visible.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("confidis starting", "version", version, "listen_addr", cfg.ListenAddr)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	log, err := walog.Open(logger, cfg.WALDir, cfg.WALSegmentBytes)
	if err != nil {
		return fmt.Errorf("walog: %w", err)
	}
	defer func() { _ = log.Close() }()

	engine := graph.New(logger)

	recovered, err := log.Recover()
	if err != nil {
		return fmt.Errorf("walog recover: %w", err)
	}
	for _, cmd := range recovered {
		if _, err := engine.ExecuteCommand(cmd); err != nil {
			logger.Warn("recovery: command replay failed, continuing", "error", err)
		}
	}
	if len(recovered) > 0 {
		logger.Info("recovered commands from command log", "count", len(recovered))
	}

	trustMgr, err := trust.NewManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("trust: %w", err)
	}

	var limiter *ratelimit.MemoryLimiter
	if cfg.SetRateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.SetRateLimitPerSecond, cfg.SetRateLimitBurst)
		defer func() { _ = limiter.Close() }()
	}

	var db *storage.DB
	if cfg.SnapshotDSN != "" {
		db, err = storage.New(ctx, cfg.SnapshotDSN, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("storage ensure schema: %w", err)
		}
		go snapshotLoop(ctx, db, engine, logger, cfg.SnapshotInterval)
	}

	go integrityLoop(ctx, log, logger, cfg.IntegrityCadence)

	srv := &frontend.Server{
		Engine:   engine,
		Log:      log,
		Limiter:  limiter,
		TrustMgr: trustMgr,
		Logger:   logger,
		Admin:    cfg.AdminTokenHash,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ctx, ln, cfg.ReadTimeout, cfg.WriteTimeout); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("confidis shutting down")
	_ = ln.Close()
	srv.Wait()
	logger.Info("confidis stopped")
	return nil
}

func snapshotLoop(ctx context.Context, db *storage.DB, engine *graph.Engine, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sources, questions := engine.Snapshot()
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := db.WriteSnapshot(opCtx, sources, questions); err != nil {
				logger.Warn("snapshot write failed", "error", err)
			}
			cancel()
		}
	}
}

func integrityLoop(ctx context.Context, log *walog.Log, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := log.RecoverEntries()
			if err != nil {
				logger.Warn("integrity: command log read failed", "error", err)
				continue
			}
			leaves := make([]string, 0, len(entries))
			for _, e := range entries {
				payload, err := json.Marshal(e.Cmd)
				if err != nil {
					logger.Warn("integrity: command marshal failed", "error", err, "seq", e.Seq)
					continue
				}
				leaves = append(leaves, integrity.ComputeLeafHash(e.Seq, payload, e.AppliedAt))
			}
			root := integrity.BuildMerkleRoot(leaves)
			logger.Info("integrity root computed", "commands", len(leaves), "root", root)
		}
	}
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
