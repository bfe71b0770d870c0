// Package did maps issuer identifiers to verification keys.
//
// Resolution dispatches on the DID method prefix. None of the registered
// methods perform network resolution: did:ebsi and did:web would need an
// on-chain lookup and a .well-known/did.json fetch respectively, and both
// currently return the locally configured trusted key. This is a documented
// simplification, not a claim of remote verification.
//
// An unrecognized method falls back to the local key instead of failing
// closed. That leniency is deliberate behavioral parity with the system this
// replaces; deployments federating with real third-party issuers should
// register a strategy per trusted method and reconsider the fallback.
package did

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"strings"
)

// Strategy resolves one DID method to a verification key. Strategies must be
// read-only: no strategy may mutate resolver or process state.
type Strategy func(did string) (*rsa.PublicKey, error)

// KeySource provides the local trusted key used by the bundled strategies
// and the fallback. Satisfied by *keys.Store.
type KeySource interface {
	LoadPublicKey() (*rsa.PublicKey, error)
}

// Resolver dispatches issuer identifiers to per-method strategies.
type Resolver struct {
	logger     *slog.Logger
	prefixes   []string // registration order, checked first match wins
	strategies map[string]Strategy
	fallback   Strategy
}

// NewResolver builds a resolver with the did:ebsi, did:web and did:key
// methods registered against the local key source.
func NewResolver(local KeySource, logger *slog.Logger) *Resolver {
	localKey := func(string) (*rsa.PublicKey, error) {
		return local.LoadPublicKey()
	}
	r := &Resolver{
		logger:     logger,
		strategies: make(map[string]Strategy),
		fallback:   localKey,
	}
	r.Register("did:ebsi:", localKey)
	r.Register("did:web:", localKey)
	r.Register("did:key:", localKey)
	return r
}

// Register adds a method strategy. Later registrations for the same prefix
// replace earlier ones.
func (r *Resolver) Register(prefix string, strategy Strategy) {
	if _, exists := r.strategies[prefix]; !exists {
		r.prefixes = append(r.prefixes, prefix)
	}
	r.strategies[prefix] = strategy
}

// Resolve returns the public key that should verify signatures from the
// given issuer. It only fails when the selected strategy itself fails
// (typically: local key missing); an unknown method is not an error.
func (r *Resolver) Resolve(issuer string) (*rsa.PublicKey, error) {
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(issuer, prefix) {
			key, err := r.strategies[prefix](issuer)
			if err != nil {
				return nil, fmt.Errorf("resolve %s issuer: %w", prefix, err)
			}
			return key, nil
		}
	}

	if r.logger != nil {
		r.logger.Debug("unrecognized DID method, using local trusted key", "issuer", issuer)
	}
	key, err := r.fallback(issuer)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback issuer: %w", err)
	}
	return key, nil
}
