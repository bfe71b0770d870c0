package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"passport/internal/credential"
	"passport/pkg/platform/sentinel"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for duplicate primary keys.
const uniqueViolation = "23505"

// PostgresStore persists the credential ledger in PostgreSQL. All reads hit
// the database directly; there is no caching layer, so every verification
// sees the latest committed revocation state.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed credential ledger.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) Insert(ctx context.Context, jti, token string) error {
	query := `
		INSERT INTO credentials (jti, token, status, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, jti, token, credential.StatusValid, s.clock().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("credential %s: %w", jti, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByJTI(ctx context.Context, jti string) (credential.Record, error) {
	var record credential.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT jti, token, status, created_at FROM credentials WHERE jti = $1`, jti,
	).Scan(&record.JTI, &record.Token, &record.Status, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Record{}, fmt.Errorf("credential %s: %w", jti, sentinel.ErrNotFound)
		}
		return credential.Record{}, fmt.Errorf("find credential: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// Revoke sets the status to revoked unconditionally; the UPDATE is a no-op
// on already-revoked rows.
func (s *PostgresStore) Revoke(ctx context.Context, jti string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = $2 WHERE jti = $1`, jti, credential.StatusRevoked)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credential %s: %w", jti, sentinel.ErrNotFound)
	}
	return nil
}

// List returns all records, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]credential.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jti, token, status, created_at FROM credentials ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []credential.Record
	for rows.Next() {
		var record credential.Record
		if err := rows.Scan(&record.JTI, &record.Token, &record.Status, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		record.CreatedAt = record.CreatedAt.UTC()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}
