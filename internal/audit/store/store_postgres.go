package store

import (
	"context"
	"database/sql"
	"fmt"

	"passport/internal/audit"
)

// PostgresStore appends audit events to PostgreSQL. Insert-only; the audit
// trail has no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (type, jti, subject, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.Type, nullable(event.JTI), nullable(event.Subject), nullable(event.Detail),
		event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COALESCE(jti, ''), COALESCE(subject, ''), COALESCE(detail, ''), created_at
		 FROM audit_events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var event audit.Event
		if err := rows.Scan(&event.Type, &event.JTI, &event.Subject, &event.Detail, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Timestamp = event.Timestamp.UTC()
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
