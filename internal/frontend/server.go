// Package frontend implements the line-oriented TCP protocol that exposes a
// belief engine to clients: authentication, rate limiting, command
// dispatch, and trust attestation issuance. It is shared by the confidisd
// daemon and by the embeddable root package so both present identical wire
// behavior.
package frontend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/waoai/confidis/internal/auth"
	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/lang"
	"github.com/waoai/confidis/internal/ratelimit"
	"github.com/waoai/confidis/internal/trust"
	"github.com/waoai/confidis/internal/walog"
)

// Server dispatches accepted connections against a single engine. The
// engine holds no internal lock, so every command — across every
// connection — is serialized through dispatchMu.
type Server struct {
	Engine   *graph.Engine
	Log      *walog.Log
	Limiter  *ratelimit.MemoryLimiter
	TrustMgr *trust.Manager
	Logger   *slog.Logger
	Admin    string // Argon2id hash of the admin token; empty disables admin gating

	// OnCommand, if set, is called after every successfully applied
	// command, under the same serialization as Engine access. Embedders
	// use this to observe state changes without polling Engine.Snapshot.
	OnCommand func(cmd graph.Command, resp graph.Response)

	dispatchMu sync.Mutex
	wg         sync.WaitGroup
}

// Serve accepts connections on ln until it is closed or ctx is cancelled,
// tracking each connection goroutine so callers can wait for a clean
// shutdown via Wait.
func (s *Server) Serve(ctx context.Context, ln net.Listener, readTimeout, writeTimeout time.Duration) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn, readTimeout, writeTimeout)
		}()
	}
}

// Wait blocks until every connection goroutine started by Serve has
// returned. Callers close the listener first so Accept unblocks.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn, readTimeout, writeTimeout time.Duration) {
	defer conn.Close()
	authorized := s.Admin == "" // no admin token configured: CONFIGURE is open to everyone
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if token, ok := strings.CutPrefix(line, "AUTH "); ok {
			authorized = s.isAdminAuthorized(strings.TrimSpace(token))
			reply := "ERROR invalid admin token"
			if authorized {
				reply = "OK"
			}
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
			continue
		}

		reply := s.Dispatch(line, authorized)

		if writeTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			s.Logger.Debug("write failed, closing connection", "error", err)
			return
		}
	}
}

// Dispatch parses, authorizes, rate-limits, durably logs, and applies a
// single command line, returning the textual response to send back. It is
// exported so embedders can drive the same protocol without opening a TCP
// connection to themselves.
func (s *Server) Dispatch(line string, authorized bool) string {
	cmd, err := lang.Parse(line)
	if err != nil {
		return fmt.Sprintf("ERROR %s", err)
	}

	if cmd.Kind == graph.CmdConfigure && !authorized {
		return "ERROR admin authorization required for CONFIGURE"
	}

	if cmd.Kind == graph.CmdSet && s.Limiter != nil {
		allowed, err := s.Limiter.Allow(context.Background(), cmd.Source)
		if err != nil {
			return fmt.Sprintf("ERROR rate limit check failed: %s", err)
		}
		if !allowed {
			return "ERROR rate limited"
		}
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if _, err := s.Log.Append(cmd); err != nil {
		return fmt.Sprintf("ERROR command log append failed: %s", err)
	}

	resp, err := s.Engine.ExecuteCommand(cmd)
	if err != nil {
		return fmt.Sprintf("ERROR %s", err)
	}

	if s.OnCommand != nil {
		s.OnCommand(cmd, resp)
	}

	// Set, Believe, and Configure have no canonical textual projection —
	// only Get/Test responses carry a rendered payload — so an empty
	// render means "accepted" and gets "OK" in its place.
	out := lang.Render(resp)
	if out == "" {
		out = "OK"
	}
	if cmd.Kind == graph.CmdBelieve {
		sources, _ := s.Engine.Snapshot()
		for _, src := range sources {
			if src.Name == cmd.Source {
				if token, _, err := s.TrustMgr.IssueAttestation(src.Name, src.Quality); err == nil {
					out = out + " attestation=" + token
				}
				break
			}
		}
	}
	return out
}

// isAdminAuthorized checks a presented admin token against the configured
// hash. Always consults auth even on empty config so timing does not
// distinguish "no admin configured" from "wrong token".
func (s *Server) isAdminAuthorized(token string) bool {
	if s.Admin == "" {
		auth.DummyVerify()
		return false
	}
	ok, err := auth.VerifyToken(token, s.Admin)
	if err != nil {
		return false
	}
	return ok
}
