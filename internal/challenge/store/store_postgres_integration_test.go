//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passport/internal/challenge"
	"passport/internal/challenge/store"
	"passport/pkg/platform/sentinel"
	"passport/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite

	ctx       context.Context
	container *containers.PostgresContainer
	now       time.Time
	store     *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewPostgresContainer(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.container.TruncateTables(s.ctx, "nonces"))
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.store = store.NewPostgres(s.container.DB)
}

func (s *PostgresStoreSuite) nonce(value string, ttl time.Duration) challenge.Nonce {
	return challenge.Nonce{Value: value, ExpiresAt: s.now.Add(ttl)}
}

func (s *PostgresStoreSuite) TestConsumeOnce() {
	s.Require().NoError(s.store.Insert(s.ctx, s.nonce("n1", time.Minute)))

	s.Require().NoError(s.store.Consume(s.ctx, "n1", s.now))
	s.Require().ErrorIs(s.store.Consume(s.ctx, "n1", s.now), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestConsumeUnknown() {
	err := s.store.Consume(s.ctx, "never-issued", s.now)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConsumeExpired() {
	s.Require().NoError(s.store.Insert(s.ctx, s.nonce("n1", 5*time.Second)))

	err := s.store.Consume(s.ctx, "n1", s.now.Add(6*time.Second))
	s.Require().ErrorIs(err, sentinel.ErrExpired)
}

func (s *PostgresStoreSuite) TestInsertDuplicate() {
	s.Require().NoError(s.store.Insert(s.ctx, s.nonce("n1", time.Minute)))
	err := s.store.Insert(s.ctx, s.nonce("n1", time.Minute))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestListKeepsConsumedNonces() {
	s.Require().NoError(s.store.Insert(s.ctx, s.nonce("n1", time.Minute)))
	s.Require().NoError(s.store.Consume(s.ctx, "n1", s.now))

	nonces, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(nonces, 1)
	s.Require().NotNil(nonces[0].ConsumedAt)
	s.Equal(s.now, *nonces[0].ConsumedAt)
}

// TestConcurrentConsume races many consumers against the conditional UPDATE;
// exactly one may win.
func (s *PostgresStoreSuite) TestConcurrentConsume() {
	s.Require().NoError(s.store.Insert(s.ctx, s.nonce("n1", time.Minute)))

	const consumers = 16
	var wg sync.WaitGroup
	errs := make([]error, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.store.Consume(s.ctx, "n1", s.now)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
		}
	}
	s.Equal(1, winners)
}
