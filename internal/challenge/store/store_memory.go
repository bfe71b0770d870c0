package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"passport/internal/challenge"
	"passport/pkg/platform/sentinel"
)

// MemoryStore keeps the nonce ledger in memory for tests/dev. Consume is
// check-and-set under one lock, so the single-consumption guarantee holds
// across concurrent callers.
type MemoryStore struct {
	mu     sync.RWMutex
	nonces map[string]challenge.Nonce
}

// NewMemory constructs an empty in-memory nonce ledger.
func NewMemory() *MemoryStore {
	return &MemoryStore{nonces: make(map[string]challenge.Nonce)}
}

func (s *MemoryStore) Insert(_ context.Context, nonce challenge.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nonces[nonce.Value]; exists {
		return fmt.Errorf("nonce: %w", sentinel.ErrConflict)
	}
	s.nonces[nonce.Value] = nonce
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.nonces[value]
	if !ok {
		return fmt.Errorf("nonce: %w", sentinel.ErrNotFound)
	}
	if nonce.ConsumedAt != nil {
		return fmt.Errorf("nonce consumed at %s: %w", nonce.ConsumedAt, sentinel.ErrAlreadyUsed)
	}
	if now.After(nonce.ExpiresAt) {
		return fmt.Errorf("nonce expired at %s: %w", nonce.ExpiresAt, sentinel.ErrExpired)
	}

	consumedAt := now
	nonce.ConsumedAt = &consumedAt
	s.nonces[value] = nonce
	return nil
}

// List returns all nonces, latest expiry first.
func (s *MemoryStore) List(_ context.Context) ([]challenge.Nonce, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]challenge.Nonce, 0, len(s.nonces))
	for _, nonce := range s.nonces {
		out = append(out, nonce)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.After(out[j].ExpiresAt)
	})
	return out, nil
}
