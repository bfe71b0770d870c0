// Package audit captures structured audit events for credential issuance,
// verification and revocation. Events are append-only and go through the
// storage layer so tests can swap sinks easily.
package audit

import (
	"context"
	"time"
)

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context) ([]Event, error)
}

// Publisher stamps and forwards audit events.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends one event, stamping the timestamp when the caller left it
// zero. A nil publisher is a no-op so audit stays optional in tests.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}

// List returns all recorded events.
func (p *Publisher) List(ctx context.Context) ([]Event, error) {
	return p.store.List(ctx)
}
