package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"passport/internal/platform/metrics"
	dErrors "passport/pkg/domain-errors"
)

// TTL policy bounds for verifier challenges.
const (
	MinTTL = 5 * time.Second
	MaxTTL = 600 * time.Second
)

// nonceBytes of entropy per nonce; base64url-encoded to 32 characters.
const nonceBytes = 24

// Store persists nonces. Consume must be atomic per nonce value: two
// concurrent calls for the same value must not both succeed. Implementations
// return sentinel.ErrNotFound / ErrAlreadyUsed / ErrExpired.
type Store interface {
	Insert(ctx context.Context, nonce Nonce) error
	Consume(ctx context.Context, value string, now time.Time) error
	List(ctx context.Context) ([]Nonce, error)
}

// Clock abstracts time.Now for deterministic expiry tests.
type Clock func() time.Time

// Service issues and consumes verifier challenges.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs a challenge service.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Issue creates a fresh single-use nonce with the given TTL. Fails only on
// policy violation or storage errors.
func (s *Service) Issue(ctx context.Context, ttl time.Duration) (Nonce, error) {
	if ttl < MinTTL || ttl > MaxTTL {
		return Nonce{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("challenge ttl must be between %s and %s", MinTTL, MaxTTL))
	}

	value, err := randomValue()
	if err != nil {
		return Nonce{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}

	nonce := Nonce{
		Value:     value,
		ExpiresAt: s.clock().UTC().Add(ttl),
	}
	if err := s.store.Insert(ctx, nonce); err != nil {
		return Nonce{}, dErrors.Wrap(err, dErrors.CodeInternal, "store nonce")
	}

	s.metrics.IncChallengesIssued()
	s.logger.InfoContext(ctx, "challenge issued", "expires_at", nonce.ExpiresAt)
	return nonce, nil
}

// Consume marks the nonce as used. Exactly one concurrent caller can win;
// losers get sentinel.ErrAlreadyUsed. Errors pass through untranslated so
// the trust engine can map them onto verdict reasons.
func (s *Service) Consume(ctx context.Context, value string) error {
	if err := s.store.Consume(ctx, value, s.clock().UTC()); err != nil {
		return err
	}
	s.metrics.IncChallengesConsumed()
	return nil
}

// List returns every nonce ever issued, for the admin dump.
func (s *Service) List(ctx context.Context) ([]Nonce, error) {
	return s.store.List(ctx)
}

func randomValue() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
