package audit

import "time"

// EventType enumerates auditable trust-engine actions.
type EventType string

const (
	EventCredentialIssued   EventType = "credential.issued"
	EventCredentialRevoked  EventType = "credential.revoked"
	EventCredentialVerified EventType = "credential.verified"
	EventChallengeIssued    EventType = "challenge.issued"
)

// Event is one append-only audit record. Detail carries the verification
// outcome or revocation context; never raw tokens or key material.
type Event struct {
	Type      EventType `json:"type"`
	JTI       string    `json:"jti,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
