// Package trust issues and validates signed attestations that a source's
// current reliability estimate was pinned by an explicit Believe command,
// as opposed to drifting passively from consensus agreement.
package trust

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the claim set carried by a believe attestation.
type Claims struct {
	jwt.RegisteredClaims
	Source   string  `json:"source"`
	Quality  float64 `json:"quality"`
	PinnedAt int64   `json:"pinned_at"`
}

// Manager issues and validates believe attestations using Ed25519 (EdDSA).
// Keys can be loaded from PEM files or auto-generated for development.
type Manager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiration time.Duration
}

// NewManager creates a Manager from PEM key files. If both paths are empty,
// an ephemeral key pair is generated — attestations issued this way do not
// survive a daemon restart, since nothing else holds the public key.
func NewManager(privateKeyPath, publicKeyPath string, expiration time.Duration) (*Manager, error) {
	if privateKeyPath == "" && publicKeyPath == "" {
		slog.Warn("trust: no JWT key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("trust: generate key pair: %w", err)
		}
		return &Manager{privateKey: priv, publicKey: pub, expiration: expiration}, nil
	}

	privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("trust: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("trust: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("trust: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("trust: private key is not Ed25519")
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("trust: read public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("trust: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("trust: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("trust: public key is not Ed25519")
	}

	derivedPub := edPriv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, edPub) {
		return nil, fmt.Errorf("trust: public key does not match private key")
	}

	return &Manager{privateKey: edPriv, publicKey: edPub, expiration: expiration}, nil
}

// IssueAttestation signs a claim that source's quality was pinned to the
// given value by an explicit Believe command.
func (m *Manager) IssueAttestation(source string, quality float64) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   source,
			Issuer:    "confidis",
			Audience:  jwt.ClaimStrings{"confidis"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Source:   source,
		Quality:  quality,
		PinnedAt: now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("trust: sign attestation: %w", err)
	}
	return signed, exp, nil
}

// ValidateAttestation parses and validates a believe attestation, returning
// its claims.
func (m *Manager) ValidateAttestation(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("trust: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience("confidis"),
	)
	if err != nil {
		return nil, fmt.Errorf("trust: validate attestation: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("trust: invalid attestation claims")
	}

	if claims.Issuer != "confidis" {
		return nil, fmt.Errorf("trust: invalid issuer: %s", claims.Issuer)
	}

	return claims, nil
}
