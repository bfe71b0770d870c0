// Package keys loads and caches the issuer's RSA key pair.
//
// Key material is resolved with the following precedence: a configured spec
// naming an existing file, then inline PEM, then the default path under the
// key directory. Keys load once per process and are reused; the load is
// guarded so concurrent first callers cannot race.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrKeyNotFound indicates no configured or default path resolved to
	// existing key material. A configuration fault, fatal at first use.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyMalformed indicates the bytes did not parse as a PEM-encoded RSA
	// key of the expected form.
	ErrKeyMalformed = errors.New("key malformed")
)

const (
	defaultPrivateFile = "private.pem"
	defaultPublicFile  = "public.pem"
)

// Store owns the issuer key pair. Construct one with New and inject it;
// there is deliberately no package-level singleton.
type Store struct {
	privateSpec string // inline PEM or path, empty = default path
	publicSpec  string
	keyDir      string // directory holding the default PEM files

	privOnce sync.Once
	priv     *rsa.PrivateKey
	privErr  error

	pubOnce sync.Once
	pub     *rsa.PublicKey
	pubErr  error
}

// Option configures a Store.
type Option func(*Store)

// WithKeyDir overrides the directory searched for the default PEM files.
func WithKeyDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.keyDir = dir
		}
	}
}

// New constructs a key store. privateSpec and publicSpec may each be inline
// PEM, a file path, or empty (default path).
func New(privateSpec, publicSpec string, opts ...Option) *Store {
	s := &Store{
		privateSpec: privateSpec,
		publicSpec:  publicSpec,
		keyDir:      "keys",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// LoadPrivateKey returns the issuer signing key, loading it on first call.
func (s *Store) LoadPrivateKey() (*rsa.PrivateKey, error) {
	s.privOnce.Do(func() {
		raw, err := s.resolve(s.privateSpec, defaultPrivateFile)
		if err != nil {
			s.privErr = err
			return
		}
		s.priv, s.privErr = parsePrivateKey(raw)
	})
	return s.priv, s.privErr
}

// LoadPublicKey returns the local trusted verification key, loading it on
// first call. This is also the DID resolver's fallback key.
func (s *Store) LoadPublicKey() (*rsa.PublicKey, error) {
	s.pubOnce.Do(func() {
		raw, err := s.resolve(s.publicSpec, defaultPublicFile)
		if err != nil {
			s.pubErr = err
			return
		}
		s.pub, s.pubErr = parsePublicKey(raw)
	})
	return s.pub, s.pubErr
}

// resolve turns a key spec into PEM bytes. A spec naming an existing file is
// read from disk; a spec carrying a PEM block is used as-is; an empty spec
// falls back to the default file under keyDir.
func (s *Store) resolve(spec, defaultFile string) ([]byte, error) {
	if spec != "" {
		if info, err := os.Stat(spec); err == nil && !info.IsDir() {
			return readKeyFile(spec)
		}
		if strings.Contains(spec, "-----BEGIN") {
			return []byte(spec), nil
		}
		return nil, fmt.Errorf("no key at %q: %w", spec, ErrKeyNotFound)
	}

	path := filepath.Join(s.keyDir, defaultFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no key at %q: %w", path, ErrKeyNotFound)
	}
	return readKeyFile(path)
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, ErrKeyNotFound)
	}
	return raw, nil
}

func parsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key: %w", ErrKeyMalformed)
	}

	// PKCS8 is what genkeys emits; accept PKCS1 for keys produced by
	// openssl genrsa.
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA: %w", parsed, ErrKeyMalformed)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", ErrKeyMalformed)
	}
	return key, nil
}

func parsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key: %w", ErrKeyMalformed)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", ErrKeyMalformed)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA: %w", parsed, ErrKeyMalformed)
	}
	return key, nil
}
