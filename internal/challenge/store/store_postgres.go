package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"passport/internal/challenge"
	"passport/pkg/platform/sentinel"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresStore persists the nonce ledger in PostgreSQL.
//
// Consume relies on a conditional UPDATE (`WHERE consumed_at IS NULL`) as
// the atomic check-and-set: when two requests race on the same nonce, the
// row lock serializes them and exactly one UPDATE reports an affected row.
// A plain read-then-write would let both pass the check.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed nonce ledger.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, nonce challenge.Nonce) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nonces (value, expires_at) VALUES ($1, $2)`,
		nonce.Value, nonce.ExpiresAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("nonce: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert nonce: %w", err)
	}
	return nil
}

func (s *PostgresStore) Consume(ctx context.Context, value string, now time.Time) error {
	var expiresAt time.Time
	var consumedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at, consumed_at FROM nonces WHERE value = $1`, value,
	).Scan(&expiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("nonce: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("load nonce: %w", err)
	}

	if consumedAt.Valid {
		return fmt.Errorf("nonce consumed at %s: %w", consumedAt.Time.UTC(), sentinel.ErrAlreadyUsed)
	}
	if now.After(expiresAt.UTC()) {
		return fmt.Errorf("nonce expired at %s: %w", expiresAt.UTC(), sentinel.ErrExpired)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE nonces SET consumed_at = $2 WHERE value = $1 AND consumed_at IS NULL`,
		value, now.UTC())
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume nonce rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race: someone else consumed between our read and write.
		return fmt.Errorf("nonce: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

// List returns all nonces, latest expiry first.
func (s *PostgresStore) List(ctx context.Context) ([]challenge.Nonce, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value, expires_at, consumed_at FROM nonces ORDER BY expires_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list nonces: %w", err)
	}
	defer rows.Close()

	var out []challenge.Nonce
	for rows.Next() {
		var nonce challenge.Nonce
		var consumedAt sql.NullTime
		if err := rows.Scan(&nonce.Value, &nonce.ExpiresAt, &consumedAt); err != nil {
			return nil, fmt.Errorf("scan nonce: %w", err)
		}
		nonce.ExpiresAt = nonce.ExpiresAt.UTC()
		if consumedAt.Valid {
			t := consumedAt.Time.UTC()
			nonce.ConsumedAt = &t
		}
		out = append(out, nonce)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nonces: %w", err)
	}
	return out, nil
}
