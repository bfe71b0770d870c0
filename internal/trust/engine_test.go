package trust_test

import (
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"passport/internal/challenge"
	challengestore "passport/internal/challenge/store"
	"passport/internal/credential"
	credentialstore "passport/internal/credential/store"
	"passport/internal/trust"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/testutil"
)

const (
	testIssuer  = "did:web:demo"
	testSubject = "did:example:runner"
)

type fakeSigner struct {
	key *rsa.PrivateKey
	err error
}

func (f *fakeSigner) LoadPrivateKey() (*rsa.PrivateKey, error) {
	return f.key, f.err
}

type fakeResolver struct {
	key *rsa.PublicKey
	err error
}

func (f *fakeResolver) Resolve(string) (*rsa.PublicKey, error) {
	return f.key, f.err
}

// EngineSuite wires a full engine over in-memory ledgers with an injected
// clock, so expiry scenarios run without sleeping.
type EngineSuite struct {
	suite.Suite

	ctx      context.Context
	now      time.Time
	pair     *rsa.PrivateKey
	resolver *fakeResolver
	codec    *credential.Codec
	engine   *trust.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.pair = testutil.GenerateKeyPair(s.T())
	s.resolver = &fakeResolver{key: &s.pair.PublicKey}

	clock := func() time.Time { return s.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.codec = credential.NewCodec(testIssuer, credential.WithClock(clock))
	s.engine = trust.NewEngine(
		&fakeSigner{key: s.pair},
		s.resolver,
		s.codec,
		credentialstore.NewMemory(credentialstore.WithMemoryClock(clock)),
		challenge.NewService(challengestore.NewMemory(), logger, challenge.WithClock(clock)),
		logger,
	)
}

func (s *EngineSuite) issue(ttl time.Duration) trust.IssueResult {
	result, err := s.engine.Issue(s.ctx, trust.IssueRequest{
		SubjectClaims: map[string]any{"event": "City Marathon", "bib": "123", "name": "Ada"},
		SubjectDID:    testSubject,
		TTL:           ttl,
	})
	s.Require().NoError(err)
	return result
}

func (s *EngineSuite) challengeNonce(ttl time.Duration) string {
	nonce, err := s.engine.Challenge(s.ctx, ttl)
	s.Require().NoError(err)
	return nonce.Value
}

func (s *EngineSuite) TestIssueAndVerifyRoundTrip() {
	result := s.issue(time.Hour)

	s.True(strings.HasPrefix(result.JTI, "vc-"))
	s.Len(strings.Split(result.Token, "."), 3)
	s.Equal(testSubject, result.Claims.Subject)
	s.Equal("123", result.Claims.VC["bib"])

	verdict, err := s.engine.Verify(s.ctx, result.Token, "")
	s.Require().NoError(err)
	s.True(verdict.Valid)
	s.Empty(verdict.Reason)
	s.Require().NotNil(verdict.Claims)
	s.Equal(result.JTI, verdict.Claims.ID)
	s.Equal("123", verdict.Claims.VC["bib"])
}

func (s *EngineSuite) TestIssueTTLPolicy() {
	for name, ttl := range map[string]time.Duration{
		"below floor":   30 * time.Second,
		"above ceiling": 2 * 365 * 24 * time.Hour,
	} {
		s.Run(name, func() {
			_, err := s.engine.Issue(s.ctx, trust.IssueRequest{SubjectDID: testSubject, TTL: ttl})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *EngineSuite) TestIssueRequiresSubject() {
	_, err := s.engine.Issue(s.ctx, trust.IssueRequest{TTL: time.Hour})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *EngineSuite) TestVerifyTamperedToken() {
	result := s.issue(time.Hour)

	last := result.Token[len(result.Token)-1]
	flipped := byte('A')
	if last == flipped {
		flipped = 'B'
	}
	tampered := result.Token[:len(result.Token)-1] + string(flipped)

	verdict, err := s.engine.Verify(s.ctx, tampered, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonInvalidSignature, verdict.Reason)
}

func (s *EngineSuite) TestVerifyExpiredToken() {
	result := s.issue(time.Hour)

	s.now = s.now.Add(2 * time.Hour)

	verdict, err := s.engine.Verify(s.ctx, result.Token, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonExpired, verdict.Reason)
}

func (s *EngineSuite) TestVerifyMalformedToken() {
	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not-a-jwt",
	} {
		s.Run(name, func() {
			verdict, err := s.engine.Verify(s.ctx, token, "")
			s.Require().NoError(err)
			s.False(verdict.Valid)
			s.Equal(trust.ReasonMalformed, verdict.Reason)
		})
	}
}

func (s *EngineSuite) TestVerifyUnresolvableIssuer() {
	result := s.issue(time.Hour)

	s.resolver.err = errors.New("key source unavailable")

	verdict, err := s.engine.Verify(s.ctx, result.Token, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonUnresolvableIssuer, verdict.Reason)
}

// A well-signed token whose jti was never recorded must be rejected: trust
// requires presence in the ledger, not just a good signature.
func (s *EngineSuite) TestVerifyUnknownJTI() {
	envelope, err := s.codec.Encode(map[string]any{"bib": "999"}, testSubject, time.Hour)
	s.Require().NoError(err)
	foreign, err := envelope.Unsigned.SignedString(s.pair)
	s.Require().NoError(err)

	verdict, err := s.engine.Verify(s.ctx, foreign, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonUnknownJTI, verdict.Reason)
}

func (s *EngineSuite) TestRevocation() {
	result := s.issue(time.Hour)

	revoked, err := s.engine.Revoke(s.ctx, result.JTI)
	s.Require().NoError(err)
	s.Equal(result.JTI, revoked.JTI)
	s.Equal(credential.StatusRevoked, revoked.NewStatus)

	verdict, err := s.engine.Verify(s.ctx, result.Token, "")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonRevoked, verdict.Reason)
}

func (s *EngineSuite) TestRevokeIsIdempotent() {
	result := s.issue(time.Hour)

	_, err := s.engine.Revoke(s.ctx, result.JTI)
	s.Require().NoError(err)
	second, err := s.engine.Revoke(s.ctx, result.JTI)
	s.Require().NoError(err)
	s.Equal(credential.StatusRevoked, second.NewStatus)

	// Still revoked, never resurrected.
	verdict, err := s.engine.Verify(s.ctx, result.Token, "")
	s.Require().NoError(err)
	s.Equal(trust.ReasonRevoked, verdict.Reason)
}

func (s *EngineSuite) TestRevokeValidation() {
	_, err := s.engine.Revoke(s.ctx, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.engine.Revoke(s.ctx, "vc-never-issued")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestVerifyWithNonce() {
	result := s.issue(time.Hour)
	nonce := s.challengeNonce(60 * time.Second)

	verdict, err := s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.True(verdict.Valid)

	// Same nonce again, even with a perfectly good token.
	verdict, err = s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonNonceUsed, verdict.Reason)
}

func (s *EngineSuite) TestVerifyNonceNotFound() {
	result := s.issue(time.Hour)

	verdict, err := s.engine.Verify(s.ctx, result.Token, "never-issued")
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonNonceNotFound, verdict.Reason)
}

func (s *EngineSuite) TestVerifyNonceExpired() {
	result := s.issue(time.Hour)
	nonce := s.challengeNonce(5 * time.Second)

	s.now = s.now.Add(6 * time.Second)

	verdict, err := s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.False(verdict.Valid)
	s.Equal(trust.ReasonNonceExpired, verdict.Reason)
}

// Presenting a revoked credential still burns the nonce: consumption happens
// before the revocation lookup.
func (s *EngineSuite) TestRevokedPresentationBurnsNonce() {
	result := s.issue(time.Hour)
	_, err := s.engine.Revoke(s.ctx, result.JTI)
	s.Require().NoError(err)

	nonce := s.challengeNonce(60 * time.Second)

	verdict, err := s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.Equal(trust.ReasonRevoked, verdict.Reason)

	verdict, err = s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.Equal(trust.ReasonNonceUsed, verdict.Reason)
}

// A malformed token must not burn the nonce: the signature gate comes first.
func (s *EngineSuite) TestMalformedPresentationKeepsNonce() {
	result := s.issue(time.Hour)
	nonce := s.challengeNonce(60 * time.Second)

	verdict, err := s.engine.Verify(s.ctx, "garbage", nonce)
	s.Require().NoError(err)
	s.Equal(trust.ReasonMalformed, verdict.Reason)

	verdict, err = s.engine.Verify(s.ctx, result.Token, nonce)
	s.Require().NoError(err)
	s.True(verdict.Valid)
}

func (s *EngineSuite) TestChallengeTTLPolicy() {
	_, err := s.engine.Challenge(s.ctx, time.Second)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.engine.Challenge(s.ctx, time.Hour)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// TestConcurrentNonceUse races many presentations of one nonce; exactly one
// may come back valid.
func TestConcurrentNonceUse(t *testing.T) {
	ctx := context.Background()
	pair := testutil.GenerateKeyPair(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := credential.NewCodec(testIssuer)

	engine := trust.NewEngine(
		&fakeSigner{key: pair},
		&fakeResolver{key: &pair.PublicKey},
		codec,
		credentialstore.NewMemory(),
		challenge.NewService(challengestore.NewMemory(), logger),
		logger,
	)

	result, err := engine.Issue(ctx, trust.IssueRequest{
		SubjectDID: testSubject,
		TTL:        time.Hour,
	})
	require.NoError(t, err)
	nonce, err := engine.Challenge(ctx, 60*time.Second)
	require.NoError(t, err)

	const presenters = 16
	var wg sync.WaitGroup
	verdicts := make([]trust.Verdict, presenters)
	for i := 0; i < presenters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := engine.Verify(ctx, result.Token, nonce.Value)
			assert.NoError(t, err)
			verdicts[i] = v
		}(i)
	}
	wg.Wait()

	validCount := 0
	for _, v := range verdicts {
		if v.Valid {
			validCount++
		} else {
			require.Equal(t, trust.ReasonNonceUsed, v.Reason)
		}
	}
	require.Equal(t, 1, validCount)
}
