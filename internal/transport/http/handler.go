// Package httpapi is the thin HTTP layer over the trust engine. Handlers
// decode JSON, delegate, and translate results; trust decisions never live
// here.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"passport/internal/challenge"
	"passport/internal/credential"
	"passport/internal/trust"
	dErrors "passport/pkg/domain-errors"
)

// Engine is the trust engine surface the handlers need.
type Engine interface {
	Issue(ctx context.Context, req trust.IssueRequest) (trust.IssueResult, error)
	Verify(ctx context.Context, token, nonce string) (trust.Verdict, error)
	Revoke(ctx context.Context, jti string) (trust.RevokeResult, error)
	Challenge(ctx context.Context, ttl time.Duration) (challenge.Nonce, error)
	ListCredentials(ctx context.Context) ([]credential.Record, error)
}

// NonceLister exposes the nonce ledger for the admin dump.
type NonceLister interface {
	List(ctx context.Context) ([]challenge.Nonce, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

// Handler holds the handler dependencies.
type Handler struct {
	logger     *slog.Logger
	engine     Engine
	nonces     NonceLister
	adminToken string
	health     HealthChecker

	defaultChallengeTTL time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHealthCheck wires a storage health probe into /health.
func WithHealthCheck(check HealthChecker) HandlerOption {
	return func(h *Handler) {
		h.health = check
	}
}

// WithDefaultChallengeTTL overrides the TTL used when the challenge request
// does not specify one.
func WithDefaultChallengeTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		if ttl > 0 {
			h.defaultChallengeTTL = ttl
		}
	}
}

// NewHandler constructs the HTTP handler set. adminToken empty disables the
// admin surface (fails closed).
func NewHandler(engine Engine, nonces NonceLister, adminToken string, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:              logger,
		engine:              engine,
		nonces:              nonces,
		adminToken:          adminToken,
		defaultChallengeTTL: 60 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// handleIssue issues a signed credential and records it in the ledger.
func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.SubjectDID == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "subjectDid is required"))
		return
	}

	result, err := h.engine.Issue(ctx, trust.IssueRequest{
		SubjectClaims: req.VC,
		SubjectDID:    req.SubjectDID,
		TTL:           time.Duration(req.TTL) * time.Second,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "issue failed", "error", err.Error())
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IssueResponse{
		Status:  "ok",
		JTI:     result.JTI,
		Token:   result.Token,
		Claims:  result.Claims,
		Summary: summarize(result.Claims),
	})
}

// handleVerify runs the verification state machine. The response is always
// 200 with an explicit valid flag; only infrastructure faults surface as 5xx.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Token == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "token is required"))
		return
	}

	verdict, err := h.engine.Verify(ctx, req.Token, req.Nonce)
	if err != nil {
		h.logger.ErrorContext(ctx, "verify failed", "error", err.Error())
		writeError(w, err)
		return
	}

	resp := VerifyResponse{Valid: verdict.Valid}
	if verdict.Valid {
		resp.Claims = verdict.Claims
	} else {
		resp.Reason = string(verdict.Reason)
		resp.Detail = verdict.Detail
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChallenge hands out a single-use verifier nonce.
func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ttl := h.defaultChallengeTTL
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "ttl must be an integer"))
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	nonce, err := h.engine.Challenge(ctx, ttl)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:     nonce.Value,
		ExpiresAt: nonce.ExpiresAt.UTC().Format(time.RFC3339),
		TTL:       int(ttl / time.Second),
	})
}

// handleRevoke permanently invalidates a credential.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.engine.Revoke(ctx, req.JTI)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RevokeResponse{
		Status:    "ok",
		JTI:       result.JTI,
		NewStatus: string(result.NewStatus),
	})
}

// dumpCredential is a credential row with the token truncated; full signed
// artifacts stay out of operator responses and logs.
type dumpCredential struct {
	JTI          string `json:"jti"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	TokenSnippet string `json:"token_snippet"`
}

type dumpNonce struct {
	Value      string `json:"value"`
	ExpiresAt  string `json:"expires_at"`
	ConsumedAt string `json:"consumed_at,omitempty"`
}

// handleAdminDump returns the raw ledger state for auditing. Both ledgers
// are fetched concurrently.
func (h *Handler) handleAdminDump(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		creds  []credential.Record
		nonces []challenge.Nonce
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		creds, err = h.engine.ListCredentials(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		nonces, err = h.nonces.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(ctx, "admin dump failed", "error", err.Error())
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "dump ledgers"))
		return
	}

	credsOut := make([]dumpCredential, 0, len(creds))
	for _, c := range creds {
		credsOut = append(credsOut, dumpCredential{
			JTI:          c.JTI,
			Status:       string(c.Status),
			CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
			TokenSnippet: snippet(c.Token),
		})
	}
	noncesOut := make([]dumpNonce, 0, len(nonces))
	for _, n := range nonces {
		row := dumpNonce{
			Value:     n.Value,
			ExpiresAt: n.ExpiresAt.UTC().Format(time.RFC3339),
		}
		if n.ConsumedAt != nil {
			row.ConsumedAt = n.ConsumedAt.UTC().Format(time.RFC3339)
		}
		noncesOut = append(noncesOut, row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": map[string]int{
			"total_credentials": len(credsOut),
			"total_nonces":      len(noncesOut),
		},
		"credentials": credsOut,
		"nonces":      noncesOut,
	})
}

// handleHealth checks the backing store, not just the HTTP process.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.health != nil {
		if err := h.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "error",
				"db":     err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     "connected",
	})
}

func snippet(token string) string {
	const max = 30
	if len(token) <= max {
		return token
	}
	return token[:max] + "..."
}
