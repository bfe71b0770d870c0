package httpapi

// IssueRequest is the issuer endpoint payload. VC carries the business
// claims (credentialSubject, type, optional issuer override); TTL is in
// seconds, bounded by issuance policy.
type IssueRequest struct {
	VC         map[string]any `json:"vc"`
	SubjectDID string         `json:"subjectDid"`
	TTL        int            `json:"ttl"`
}

// VerifyRequest is the verifier endpoint payload. Nonce is optional; when
// present it is consumed as part of the verification.
type VerifyRequest struct {
	Token string `json:"token"`
	Nonce string `json:"nonce,omitempty"`
}

// RevokeRequest is the privileged revocation payload.
type RevokeRequest struct {
	JTI    string `json:"jti"`
	Reason string `json:"reason,omitempty"`
}
