package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"passport/internal/credential"
	"passport/internal/credential/store"
	"passport/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite

	ctx   context.Context
	now   time.Time
	store *store.MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.store = store.NewMemory(store.WithMemoryClock(func() time.Time { return s.now }))
}

func (s *MemoryStoreSuite) TestInsertAndFind() {
	s.Require().NoError(s.store.Insert(s.ctx, "vc-1", "token-1"))

	record, err := s.store.FindByJTI(s.ctx, "vc-1")
	s.Require().NoError(err)
	s.Equal("vc-1", record.JTI)
	s.Equal("token-1", record.Token)
	s.Equal(credential.StatusValid, record.Status)
	s.Equal(s.now, record.CreatedAt)
}

func (s *MemoryStoreSuite) TestInsertDuplicate() {
	s.Require().NoError(s.store.Insert(s.ctx, "vc-1", "token-1"))
	err := s.store.Insert(s.ctx, "vc-1", "token-2")
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestFindUnknown() {
	_, err := s.store.FindByJTI(s.ctx, "vc-missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestRevoke() {
	s.Require().NoError(s.store.Insert(s.ctx, "vc-1", "token-1"))
	s.Require().NoError(s.store.Revoke(s.ctx, "vc-1"))

	record, err := s.store.FindByJTI(s.ctx, "vc-1")
	s.Require().NoError(err)
	s.Equal(credential.StatusRevoked, record.Status)
	s.True(record.Revoked())

	// A second revoke leaves the record revoked.
	s.Require().NoError(s.store.Revoke(s.ctx, "vc-1"))
	record, err = s.store.FindByJTI(s.ctx, "vc-1")
	s.Require().NoError(err)
	s.Equal(credential.StatusRevoked, record.Status)
}

func (s *MemoryStoreSuite) TestRevokeUnknown() {
	err := s.store.Revoke(s.ctx, "vc-missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestListNewestFirst() {
	// The suite clock reads s.now, so advancing it between inserts gives
	// each record a distinct CreatedAt.
	for _, jti := range []string{"vc-old", "vc-mid", "vc-new"} {
		s.Require().NoError(s.store.Insert(s.ctx, jti, "token"))
		s.now = s.now.Add(time.Minute)
	}

	records, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("vc-new", records[0].JTI)
	s.Equal("vc-mid", records[1].JTI)
	s.Equal("vc-old", records[2].JTI)
}
