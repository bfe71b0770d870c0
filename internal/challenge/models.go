// Package challenge implements the anti-replay challenge/response protocol:
// one-time nonces with expiry and single-consumption semantics.
package challenge

import "time"

// Nonce is one row of the challenge ledger.
//
// State machine: Active (not expired, not consumed) -> Consumed (terminal,
// ConsumedAt set exactly once) or Expired (terminal, computed from ExpiresAt,
// not stored). Rows are never deleted so replay attempts stay auditable.
type Nonce struct {
	Value      string     `json:"value"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Usable reports whether the nonce can still be consumed at the given time.
// Both sides of the comparison must be UTC; stores normalize stored
// timestamps with UTC() before comparing so a session-zone rendering can
// never shift expiry.
func (n Nonce) Usable(now time.Time) bool {
	return n.ConsumedAt == nil && !now.After(n.ExpiresAt)
}
