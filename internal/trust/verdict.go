package trust

import "passport/internal/credential"

// Reason is the machine-readable code explaining an invalid verdict.
type Reason string

const (
	ReasonInvalidSignature   Reason = "invalid_signature"
	ReasonExpired            Reason = "expired"
	ReasonUnresolvableIssuer Reason = "unresolvable_issuer"
	ReasonMalformed          Reason = "malformed"
	ReasonUnknownJTI         Reason = "unknown_jti"
	ReasonRevoked            Reason = "revoked"
	ReasonNonceNotFound      Reason = "nonce_not_found"
	ReasonNonceUsed          Reason = "nonce_used"
	ReasonNonceExpired       Reason = "nonce_expired"
)

// Verdict is the terminal state of the verification state machine. Trust
// failures are values, never errors: a tampered token and a revoked
// credential are outcomes, not faults.
type Verdict struct {
	Valid  bool
	Reason Reason
	Detail string
	Claims *credential.Claims
}

// result returns the metrics/audit label for this verdict.
func (v Verdict) result() string {
	if v.Valid {
		return "valid"
	}
	return string(v.Reason)
}

func valid(claims *credential.Claims) Verdict {
	return Verdict{Valid: true, Claims: claims}
}

func invalid(reason Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}
