package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// GenerateKeyPair returns a fresh RSA key pair for signing tests. 2048 bits
// to match production key material.
func GenerateKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generate test key pair")
	return key
}

// EncodePrivatePEM returns the PKCS8 PEM encoding of the key.
func EncodePrivatePEM(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err, "marshal private key")
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// EncodePublicPEM returns the PKIX PEM encoding of the public half.
func EncodePublicPEM(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err, "marshal public key")
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// WriteKeyPair writes private.pem and public.pem into dir and returns their
// paths.
func WriteKeyPair(t *testing.T, dir string, key *rsa.PrivateKey) (privPath, pubPath string) {
	t.Helper()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath, EncodePrivatePEM(t, key), 0o600))
	require.NoError(t, os.WriteFile(pubPath, EncodePublicPEM(t, key), 0o644))
	return privPath, pubPath
}
