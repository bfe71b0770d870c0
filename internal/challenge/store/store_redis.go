package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"passport/internal/challenge"
	"passport/pkg/platform/sentinel"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key layout. The nonce row and its consumption marker are
	// separate keys so consumption can be a single SETNX.
	nonceKeyPrefix    = "challenge:nonce:"
	consumedKeyPrefix = "challenge:consumed:"
)

// RedisStore is a Redis-backed nonce ledger for distributed deployments
// where multiple instances share challenge state.
//
// Consumption atomicity comes from SETNX on the consumed marker: when two
// verifiers race on the same nonce, Redis lets exactly one SETNX through.
// Keys carry no TTL because the ledger is a replay audit trail; expiry is a
// computed predicate, not key eviction.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed nonce ledger.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Insert(ctx context.Context, nonce challenge.Nonce) error {
	key := nonceKeyPrefix + nonce.Value
	ok, err := s.client.SetNX(ctx, key, nonce.ExpiresAt.UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return fmt.Errorf("insert nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, value string, now time.Time) error {
	raw, err := s.client.Get(ctx, nonceKeyPrefix+value).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("nonce: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load nonce: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("parse nonce expiry: %w", err)
	}
	if now.After(expiresAt.UTC()) {
		return fmt.Errorf("nonce expired at %s: %w", expiresAt.UTC(), sentinel.ErrExpired)
	}

	won, err := s.client.SetNX(ctx, consumedKeyPrefix+value, now.UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if !won {
		return fmt.Errorf("nonce: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

// List scans the nonce keyspace for the admin dump. O(keys); acceptable for
// an operator endpoint.
func (s *RedisStore) List(ctx context.Context) ([]challenge.Nonce, error) {
	var out []challenge.Nonce
	iter := s.client.Scan(ctx, 0, nonceKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value := key[len(nonceKeyPrefix):]

		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("load nonce %s: %w", value, err)
		}
		expiresAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse nonce expiry: %w", err)
		}

		nonce := challenge.Nonce{Value: value, ExpiresAt: expiresAt.UTC()}
		consumedRaw, err := s.client.Get(ctx, consumedKeyPrefix+value).Result()
		if err == nil {
			if consumedAt, perr := time.Parse(time.RFC3339Nano, consumedRaw); perr == nil {
				t := consumedAt.UTC()
				nonce.ConsumedAt = &t
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("load nonce consumption %s: %w", value, err)
		}
		out = append(out, nonce)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan nonces: %w", err)
	}
	return out, nil
}
