package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"passport/internal/credential"
	dErrors "passport/pkg/domain-errors"
)

// IssueResponse mirrors the original issuer API: full claims for the holder
// wallet plus a human-oriented summary of the race result.
type IssueResponse struct {
	Status  string             `json:"status"`
	JTI     string             `json:"jti"`
	Token   string             `json:"token"`
	Claims  *credential.Claims `json:"claims"`
	Summary Summary            `json:"summary"`
}

// Summary surfaces the headline fields of a race credential.
type Summary struct {
	Event string `json:"event,omitempty"`
	Bib   string `json:"bib,omitempty"`
	Name  string `json:"name,omitempty"`
	Time  string `json:"time,omitempty"`
}

// VerifyResponse always reports with a 200 status; the trust verdict lives in
// the body, never in the HTTP status code.
type VerifyResponse struct {
	Valid  bool               `json:"valid"`
	Reason string             `json:"reason,omitempty"`
	Detail string             `json:"detail,omitempty"`
	Claims *credential.Claims `json:"claims,omitempty"`
}

// ChallengeResponse carries a fresh verifier nonce.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresAt string `json:"expiresAt"`
	TTL       int    `json:"ttl"`
}

// RevokeResponse confirms a revocation.
type RevokeResponse struct {
	Status    string `json:"status"`
	JTI       string `json:"jti"`
	NewStatus string `json:"newStatus"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation so every handler returns
// the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}
	writeJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}

// summarize pulls the headline race fields out of the vc envelope. Shapes
// are caller-provided, so every step tolerates absence.
func summarize(claims *credential.Claims) Summary {
	if claims == nil {
		return Summary{}
	}
	subject, _ := claims.VC["credentialSubject"].(map[string]any)
	if subject == nil {
		return Summary{}
	}
	summary := Summary{
		Event: stringField(subject, "event"),
		Bib:   stringField(subject, "bib"),
		Name:  stringField(subject, "name"),
	}
	if result, ok := subject["result"].(map[string]any); ok {
		summary.Time = stringField(result, "time")
	}
	return summary
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
