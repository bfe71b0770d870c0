package credential

import "time"

// Status is the ledger state of an issued credential.
//
// Transitions: valid -> revoked only. Revocation is monotonic and never
// reverses; records are never physically deleted so the ledger doubles as an
// audit trail.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether the status is one of the supported enum values.
func (s Status) IsValid() bool {
	return s == StatusValid || s == StatusRevoked
}

// Record is one row of the revocation ledger. JTI is immutable once issued;
// Token is the full signed artifact; CreatedAt is assigned by the ledger, not
// the caller.
type Record struct {
	JTI       string    `json:"jti"`
	Token     string    `json:"token"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Revoked reports whether the credential has been revoked.
func (r Record) Revoked() bool {
	return r.Status == StatusRevoked
}
