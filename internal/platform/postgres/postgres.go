package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection with a ping.
// Returns nil if the URL is empty (PostgreSQL not configured; callers fall
// back to in-memory stores).
func Open(url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the ledger tables when they do not exist yet. Kept as
// plain DDL so a fresh deployment works without a migration tool; real
// migrations can take over later.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS credentials (
			jti        TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'valid',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS credentials_status_idx ON credentials (status);

		CREATE TABLE IF NOT EXISTS nonces (
			value       TEXT PRIMARY KEY,
			expires_at  TIMESTAMPTZ NOT NULL,
			consumed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS audit_events (
			id         BIGSERIAL PRIMARY KEY,
			type       TEXT NOT NULL,
			jti        TEXT,
			subject    TEXT,
			detail     TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Health runs a trivial query to confirm the database is reachable.
func Health(ctx context.Context, db *sql.DB) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres health: %w", err)
	}
	return nil
}
