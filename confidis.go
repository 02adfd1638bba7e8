// Package confidis is the public API for embedding the belief engine.
//
// Enterprise and plugin consumers import this package to construct and run
// the engine without forking it:
//
//	app, err := confidis.New(
//	    confidis.WithVersion(version),
//	    confidis.WithLogger(logger),
//	    confidis.WithEventHook(myAuditHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: confidis (root) imports
// internal/*, but internal/* never imports confidis (root). Public types
// (Source, Question, etc.) are standalone structs with no internal
// imports; the adapter between SimilarityStrategy and the engine's
// internal similarity.Equalifier lives here because this is the only file
// that sees both sides of the boundary.
package confidis

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/joho/godotenv"

	"github.com/waoai/confidis/internal/auth"
	"github.com/waoai/confidis/internal/config"
	"github.com/waoai/confidis/internal/frontend"
	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/model"
	"github.com/waoai/confidis/internal/ratelimit"
	"github.com/waoai/confidis/internal/similarity"
	"github.com/waoai/confidis/internal/storage"
	"github.com/waoai/confidis/internal/trust"
	"github.com/waoai/confidis/internal/walog"
)

// App is the belief engine's lifecycle. Construct with New(), run with Run().
type App struct {
	cfg        config.Config
	engine     *graph.Engine
	log        *walog.Log
	limiter    *ratelimit.MemoryLimiter
	trustMgr   *trust.Manager
	db         *storage.DB
	srv        *frontend.Server
	eventHooks []EventHook
	logger     *slog.Logger
	version    string
}

// New initializes the belief engine. It opens the command log, replays any
// recovered commands, and wires every configured subsystem. It does NOT
// accept connections or start the snapshot loop — call Run(). The Set rate
// limiter, when enabled, runs its own eviction goroutine until Close.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.listenAddr != "" {
		cfg.ListenAddr = o.listenAddr
	}
	if o.walDir != "" {
		cfg.WALDir = o.walDir
	}
	if o.snapshotDSN != "" {
		cfg.SnapshotDSN = o.snapshotDSN
	}
	if o.setRateLimit > 0 {
		cfg.SetRateLimitPerSecond = o.setRateLimit
		cfg.SetRateLimitBurst = o.setRateLimitBurst
	}
	if o.jwtExpiration > 0 {
		cfg.JWTExpiration = o.jwtExpiration
	}
	if o.adminToken != "" {
		hash, err := auth.HashToken(o.adminToken)
		if err != nil {
			return nil, fmt.Errorf("hash admin token: %w", err)
		}
		cfg.AdminTokenHash = hash
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("confidis initializing", "version", version)

	log, err := walog.Open(logger, cfg.WALDir, cfg.WALSegmentBytes)
	if err != nil {
		return nil, fmt.Errorf("walog: %w", err)
	}

	engine := graph.New(logger)
	if o.similarityStrategy != nil {
		engine.SetEqualifier(equalifierAdapter{o.similarityStrategy})
	}

	recovered, err := log.Recover()
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("walog recover: %w", err)
	}
	for _, cmd := range recovered {
		if _, err := engine.ExecuteCommand(cmd); err != nil {
			logger.Warn("recovery: command replay failed, continuing", "error", err)
		}
	}

	trustMgr, err := trust.NewManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("trust: %w", err)
	}

	var limiter *ratelimit.MemoryLimiter
	if cfg.SetRateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.SetRateLimitPerSecond, cfg.SetRateLimitBurst)
	}

	var db *storage.DB
	if cfg.SnapshotDSN != "" {
		db, err = storage.New(context.Background(), cfg.SnapshotDSN, logger)
		if err != nil {
			_ = log.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.EnsureSchema(context.Background()); err != nil {
			db.Close()
			_ = log.Close()
			return nil, fmt.Errorf("storage ensure schema: %w", err)
		}
	}

	srv := &frontend.Server{
		Engine:   engine,
		Log:      log,
		Limiter:  limiter,
		TrustMgr: trustMgr,
		Logger:   logger,
		Admin:    cfg.AdminTokenHash,
	}

	app := &App{
		cfg:        cfg,
		engine:     engine,
		log:        log,
		limiter:    limiter,
		trustMgr:   trustMgr,
		db:         db,
		srv:        srv,
		eventHooks: o.eventHooks,
		logger:     logger,
		version:    version,
	}
	if len(app.eventHooks) > 0 {
		srv.OnCommand = app.notifyEventHooks
	}
	return app, nil
}

// notifyEventHooks fires the source/question lifecycle hooks for commands
// that changed engine state (Set and Believe). Runs under the same
// serialization as Engine access, so Snapshot reflects this command's
// effect and no later one's.
func (a *App) notifyEventHooks(cmd graph.Command, _ graph.Response) {
	if cmd.Kind != graph.CmdSet && cmd.Kind != graph.CmdBelieve {
		return
	}
	ctx := context.Background()
	sources, questions := a.engine.Snapshot()
	for _, s := range sources {
		if s.Name != cmd.Source {
			continue
		}
		for _, hook := range a.eventHooks {
			if err := hook.OnSourceUpdated(ctx, toPublicSource(s)); err != nil {
				a.logger.Warn("event hook OnSourceUpdated failed", "error", err, "source", s.Name)
			}
		}
		break
	}
	if cmd.Kind != graph.CmdSet {
		return
	}
	for _, q := range questions {
		if q.Name != cmd.Question {
			continue
		}
		for _, hook := range a.eventHooks {
			if err := hook.OnQuestionUpdated(ctx, a.toPublicQuestion(q)); err != nil {
				a.logger.Warn("event hook OnQuestionUpdated failed", "error", err, "question", q.Name)
			}
		}
		break
	}
}

// Run accepts connections on the configured listen address until ctx is
// cancelled, then shuts down gracefully. It also starts the periodic
// snapshot loop if a snapshot DSN was configured.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer a.Close()

	if a.db != nil {
		go a.snapshotLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Serve(ctx, ln, a.cfg.ReadTimeout, a.cfg.WriteTimeout); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	_ = ln.Close()
	a.srv.Wait()
	return nil
}

// Dispatch applies a single command line in-process, without opening a TCP
// connection to the daemon's own listener. Embedders that want to drive
// the engine directly (e.g. from a test harness or an alternate transport)
// use this instead of Run. The caller is always treated as admin-authorized
// — Go code holding an *App already cleared a stronger trust boundary than
// the network AUTH handshake exists to enforce.
func (a *App) Dispatch(line string) string {
	return a.srv.Dispatch(line, true)
}

// Source returns the current reliability estimate for name, if known.
func (a *App) Source(name string) (Source, bool) {
	sources, _ := a.engine.Snapshot()
	for _, s := range sources {
		if s.Name == name {
			return toPublicSource(s), true
		}
	}
	return Source{}, false
}

// Question returns the current state of name, if known.
func (a *App) Question(name string) (Question, bool) {
	_, questions := a.engine.Snapshot()
	for _, q := range questions {
		if q.Name == name {
			return a.toPublicQuestion(q), true
		}
	}
	return Question{}, false
}

// Close releases the App's held resources (command log, rate limiter,
// snapshot database connection). Run calls this automatically on exit;
// callers that only use Dispatch must call it themselves.
func (a *App) Close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.log.Close()
}

func (a *App) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sources, questions := a.engine.Snapshot()
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := a.db.WriteSnapshot(opCtx, sources, questions); err != nil {
				a.logger.Warn("snapshot write failed", "error", err)
			}
			cancel()
		}
	}
}

func toPublicSource(s model.Source) Source {
	return Source{Name: s.Name, Quality: s.Quality, Strength: s.Strength}
}

func (a *App) toPublicQuestion(q model.Question) Question {
	out := Question{Name: q.Name, Confidence: q.Confidence, Weight: q.Weight}
	resp, err := a.engine.ExecuteCommand(graph.Command{Kind: graph.CmdGetAnswers, Question: q.Name})
	if err != nil {
		return out
	}
	for _, ac := range resp.Answers {
		out.Answers = append(out.Answers, AnswerConfidence{Answer: ac.Answer, Confidence: ac.Confidence})
	}
	return out
}

// equalifierAdapter lets an embedder's SimilarityStrategy satisfy the
// engine's internal similarity.Equalifier, which operates on model.Answer
// rather than bare content strings.
type equalifierAdapter struct {
	strategy SimilarityStrategy
}

func (e equalifierAdapter) IsValid(a model.Answer) bool {
	return e.strategy.IsValid(a.Content)
}

func (e equalifierAdapter) Distance(a, b model.Answer) float64 {
	return e.strategy.Distance(a.Content, b.Content)
}

var _ similarity.Equalifier = equalifierAdapter{}
