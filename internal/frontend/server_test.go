package frontend

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/waoai/confidis/internal/auth"
	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/ratelimit"
	"github.com/waoai/confidis/internal/trust"
	"github.com/waoai/confidis/internal/walog"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log, err := walog.Open(logger, filepath.Join(t.TempDir(), "wal"), 0)
	if err != nil {
		t.Fatalf("walog.Open: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	mgr, err := trust.NewManager("", "", time.Hour)
	if err != nil {
		t.Fatalf("trust.NewManager: %v", err)
	}

	return &Server{
		Engine:   graph.New(logger),
		Log:      log,
		TrustMgr: mgr,
		Logger:   logger,
	}
}

func TestDispatchAppliesSetAndReturnsOK(t *testing.T) {
	s := testServer(t)
	reply := s.Dispatch(`SET q1 42 FROM alice`, false)
	if reply != "OK" {
		t.Fatalf("got %q, want OK", reply)
	}
}

func TestDispatchRejectsConfigureWithoutAuthorization(t *testing.T) {
	s := testServer(t)
	reply := s.Dispatch(`CONFIGURE comparison_method exact`, false)
	if !strings.HasPrefix(reply, "ERROR") || !strings.Contains(reply, "admin authorization") {
		t.Fatalf("got %q, want admin authorization error", reply)
	}
}

func TestDispatchAllowsConfigureWhenAuthorized(t *testing.T) {
	s := testServer(t)
	reply := s.Dispatch(`CONFIGURE comparison_method exact`, true)
	if strings.HasPrefix(reply, "ERROR") {
		t.Fatalf("got %q, want success", reply)
	}
}

func TestDispatchEnforcesRateLimitOnSet(t *testing.T) {
	s := testServer(t)
	s.Limiter = ratelimit.NewMemoryLimiter(1, 1)
	t.Cleanup(func() { _ = s.Limiter.Close() })

	first := s.Dispatch(`SET q1 1 FROM alice`, false)
	if strings.HasPrefix(first, "ERROR") {
		t.Fatalf("first Set should be allowed, got %q", first)
	}
	second := s.Dispatch(`SET q1 2 FROM alice`, false)
	if !strings.Contains(second, "rate limited") {
		t.Fatalf("second Set should be rate limited, got %q", second)
	}
}

func TestDispatchBelieveAppendsAttestation(t *testing.T) {
	s := testServer(t)
	s.Dispatch(`SET q1 42 FROM alice`, false)
	reply := s.Dispatch(`BELIEVE alice`, true)
	if !strings.Contains(reply, "attestation=") {
		t.Fatalf("got %q, want attestation suffix", reply)
	}
}

func TestDispatchRejectsMalformedCommand(t *testing.T) {
	s := testServer(t)
	reply := s.Dispatch("not a valid command", false)
	if !strings.HasPrefix(reply, "ERROR") {
		t.Fatalf("got %q, want ERROR prefix", reply)
	}
}

func TestIsAdminAuthorizedWithConfiguredToken(t *testing.T) {
	hash, err := auth.HashToken("super-secret")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	s := testServer(t)
	s.Admin = hash

	if !s.isAdminAuthorized("super-secret") {
		t.Fatal("expected correct token to authorize")
	}
	if s.isAdminAuthorized("wrong-token") {
		t.Fatal("expected wrong token to be rejected")
	}
}

func TestIsAdminAuthorizedWithNoConfiguredToken(t *testing.T) {
	s := testServer(t)
	if s.isAdminAuthorized("anything") {
		t.Fatal("expected rejection when no admin token is configured")
	}
}
