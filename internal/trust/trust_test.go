package trust_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waoai/confidis/internal/trust"
)

func TestIssueAndValidateAttestation(t *testing.T) {
	mgr, err := trust.NewManager("", "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueAttestation("s1", 0.95)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateAttestation(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.Source)
	assert.InDelta(t, 0.95, claims.Quality, 1e-9)
}

func TestValidateAttestationRejectsExpired(t *testing.T) {
	mgr, err := trust.NewManager("", "", -time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueAttestation("s1", 0.5)
	require.NoError(t, err)

	_, err = mgr.ValidateAttestation(token)
	assert.Error(t, err)
}

// writeKeyPair generates a real Ed25519 key pair and writes PEM files for it.
func writeKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "priv.pem")
	pubPath = filepath.Join(dir, "pub.pem")

	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))
	return privPath, pubPath
}

func TestNewManagerFromPEMFiles(t *testing.T) {
	privPath, pubPath := writeKeyPair(t)

	mgr, err := trust.NewManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueAttestation("s2", 0.8)
	require.NoError(t, err)

	claims, err := mgr.ValidateAttestation(token)
	require.NoError(t, err)
	assert.Equal(t, "s2", claims.Source)
}

func TestNewManagerRejectsMismatchedKeyPair(t *testing.T) {
	_, pubPath := writeKeyPair(t)
	privPath, _ := writeKeyPair(t)

	_, err := trust.NewManager(privPath, pubPath, time.Hour)
	assert.Error(t, err)
}

func TestValidateAttestationRejectsForeignSigner(t *testing.T) {
	mgr1, err := trust.NewManager("", "", time.Hour)
	require.NoError(t, err)
	mgr2, err := trust.NewManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgr1.IssueAttestation("s1", 0.5)
	require.NoError(t, err)

	_, err = mgr2.ValidateAttestation(token)
	assert.Error(t, err)
}

func TestValidateAttestationRejectsWrongAlgorithm(t *testing.T) {
	mgr, err := trust.NewManager("", "", time.Hour)
	require.NoError(t, err)

	claims := trust.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "s1",
			Issuer:   "confidis",
			Audience: jwt.ClaimStrings{"confidis"},
		},
		Source: "s1",
	}
	unsignedToken := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenStr, err := unsignedToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = mgr.ValidateAttestation(tokenStr)
	assert.Error(t, err)
}
