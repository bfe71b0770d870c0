package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"passport/internal/credential"
	"passport/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the jti does not exist
// - Return sentinel.ErrConflict (wrapped) when inserting a duplicate jti
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// Clock abstracts time.Now so tests control CreatedAt.
type Clock func() time.Time

// MemoryStore keeps the credential ledger in memory for tests/dev.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]credential.Record
	clock   Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemory constructs an empty in-memory credential ledger.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]credential.Record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, jti, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[jti]; exists {
		return fmt.Errorf("credential %s: %w", jti, sentinel.ErrConflict)
	}
	s.records[jti] = credential.Record{
		JTI:       jti,
		Token:     token,
		Status:    credential.StatusValid,
		CreatedAt: s.clock().UTC(),
	}
	return nil
}

func (s *MemoryStore) FindByJTI(_ context.Context, jti string) (credential.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[jti]
	if !ok {
		return credential.Record{}, fmt.Errorf("credential %s: %w", jti, sentinel.ErrNotFound)
	}
	return record, nil
}

// Revoke sets the status to revoked unconditionally. Revoking an
// already-revoked credential leaves it revoked; idempotency is decided at
// the service layer.
func (s *MemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jti]
	if !ok {
		return fmt.Errorf("credential %s: %w", jti, sentinel.ErrNotFound)
	}
	record.Status = credential.StatusRevoked
	s.records[jti] = record
	return nil
}

// List returns all records, newest first.
func (s *MemoryStore) List(_ context.Context) ([]credential.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]credential.Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
