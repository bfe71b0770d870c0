package challenge_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passport/internal/challenge"
	"passport/internal/challenge/store"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite

	ctx     context.Context
	now     time.Time
	service *challenge.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.service = challenge.NewService(
		store.NewMemory(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		challenge.WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) TestIssueProducesURLSafeNonce() {
	nonce, err := s.service.Issue(s.ctx, 30*time.Second)
	s.Require().NoError(err)

	// 24 bytes of entropy, base64url without padding.
	raw, err := base64.RawURLEncoding.DecodeString(nonce.Value)
	s.Require().NoError(err)
	s.Len(raw, 24)
	s.Equal(s.now.Add(30*time.Second), nonce.ExpiresAt)
	s.Nil(nonce.ConsumedAt)
}

func (s *ServiceSuite) TestIssueUniqueValues() {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		nonce, err := s.service.Issue(s.ctx, 30*time.Second)
		s.Require().NoError(err)
		s.False(seen[nonce.Value])
		seen[nonce.Value] = true
	}
}

func (s *ServiceSuite) TestIssueTTLBounds() {
	for name, ttl := range map[string]time.Duration{
		"below floor":   4 * time.Second,
		"above ceiling": 601 * time.Second,
		"zero":          0,
		"negative":      -time.Minute,
	} {
		s.Run(name, func() {
			_, err := s.service.Issue(s.ctx, ttl)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	s.Run("at bounds", func() {
		_, err := s.service.Issue(s.ctx, challenge.MinTTL)
		s.Require().NoError(err)
		_, err = s.service.Issue(s.ctx, challenge.MaxTTL)
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestConsumeOnce() {
	nonce, err := s.service.Issue(s.ctx, 30*time.Second)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Consume(s.ctx, nonce.Value))
	s.Require().ErrorIs(s.service.Consume(s.ctx, nonce.Value), sentinel.ErrAlreadyUsed)
}

func (s *ServiceSuite) TestConsumeUnknown() {
	err := s.service.Consume(s.ctx, "never-issued")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestConsumeAfterExpiry() {
	nonce, err := s.service.Issue(s.ctx, challenge.MinTTL)
	s.Require().NoError(err)

	s.now = s.now.Add(challenge.MinTTL + time.Second)
	err = s.service.Consume(s.ctx, nonce.Value)
	s.Require().ErrorIs(err, sentinel.ErrExpired)
}

func (s *ServiceSuite) TestListIncludesConsumed() {
	first, err := s.service.Issue(s.ctx, 30*time.Second)
	s.Require().NoError(err)
	_, err = s.service.Issue(s.ctx, 60*time.Second)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Consume(s.ctx, first.Value))

	nonces, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Len(nonces, 2)
}
