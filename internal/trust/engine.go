// Package trust orchestrates key loading, DID resolution, the credential
// codec and the two ledgers into the issue/verify/revoke operations.
package trust

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"time"

	"passport/internal/audit"
	"passport/internal/challenge"
	"passport/internal/credential"
	"passport/internal/platform/metrics"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/sentinel"
)

// Signer provides the issuer signing key. Satisfied by *keys.Store.
type Signer interface {
	LoadPrivateKey() (*rsa.PrivateKey, error)
}

// KeyResolver maps an issuer identifier to its verification key. Satisfied
// by *did.Resolver.
type KeyResolver interface {
	Resolve(issuer string) (*rsa.PublicKey, error)
}

// Ledger is the revocation ledger. The engine never caches records; every
// verification re-reads so a concurrent revocation is visible immediately.
type Ledger interface {
	Insert(ctx context.Context, jti, token string) error
	FindByJTI(ctx context.Context, jti string) (credential.Record, error)
	Revoke(ctx context.Context, jti string) error
	List(ctx context.Context) ([]credential.Record, error)
}

// Challenges is the subset of the challenge service the engine needs.
type Challenges interface {
	Issue(ctx context.Context, ttl time.Duration) (challenge.Nonce, error)
	Consume(ctx context.Context, value string) error
}

// Engine is the credential trust engine.
type Engine struct {
	signer     Signer
	resolver   KeyResolver
	codec      *credential.Codec
	ledger     Ledger
	challenges Challenges
	logger     *slog.Logger
	metrics    *metrics.Metrics
	auditor    *audit.Publisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithAuditor attaches the audit publisher.
func WithAuditor(p *audit.Publisher) Option {
	return func(e *Engine) {
		e.auditor = p
	}
}

// NewEngine constructs the trust engine. All collaborators are injected;
// the engine owns no state of its own.
func NewEngine(
	signer Signer,
	resolver KeyResolver,
	codec *credential.Codec,
	ledger Ledger,
	challenges Challenges,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		signer:     signer,
		resolver:   resolver,
		codec:      codec,
		ledger:     ledger,
		challenges: challenges,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// IssueRequest carries the issuance inputs.
type IssueRequest struct {
	SubjectClaims map[string]any
	SubjectDID    string
	TTL           time.Duration
}

// IssueResult is the issued credential: token plus the claims that went into
// it, for API responses.
type IssueResult struct {
	JTI    string
	Token  string
	Claims *credential.Claims
}

// Issue encodes, signs and records a credential. Issuance and ledger insert
// are atomic from the caller's perspective: if the ledger write fails the
// token is not returned. A duplicate jti is a hard failure, not retried,
// since a UUID collision will not self-resolve.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	envelope, err := e.codec.Encode(req.SubjectClaims, req.SubjectDID, req.TTL)
	if err != nil {
		return IssueResult{}, err
	}

	priv, err := e.signer.LoadPrivateKey()
	if err != nil {
		return IssueResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "load signing key")
	}

	signed, err := envelope.Unsigned.SignedString(priv)
	if err != nil {
		return IssueResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign credential")
	}

	if err := e.ledger.Insert(ctx, envelope.JTI, signed); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return IssueResult{}, dErrors.Wrap(err, dErrors.CodeConflict, "jti already issued")
		}
		return IssueResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "record credential")
	}

	e.metrics.IncCredentialsIssued()
	_ = e.auditor.Emit(ctx, audit.Event{
		Type:    audit.EventCredentialIssued,
		JTI:     envelope.JTI,
		Subject: req.SubjectDID,
	})
	e.logger.InfoContext(ctx, "credential issued",
		"jti", envelope.JTI,
		"sub", req.SubjectDID,
		"exp", envelope.Claims.ExpiresAt.Time,
	)

	return IssueResult{JTI: envelope.JTI, Token: signed, Claims: envelope.Claims}, nil
}

// Verify runs the verification state machine. The returned error is reserved
// for infrastructure faults (ledger unreachable); every trust failure is a
// Verdict value.
//
// Order is load-bearing: the signature check precedes every ledger read so a
// malformed or unsigned token can never touch trust state. When a nonce is
// presented it is consumed before the revocation lookup, so a presentation
// of a revoked credential still burns its nonce.
func (e *Engine) Verify(ctx context.Context, token, nonce string) (Verdict, error) {
	verdict, err := e.verify(ctx, token, nonce)
	if err != nil {
		return Verdict{}, err
	}

	e.metrics.ObserveVerification(verdict.result())
	jti := ""
	if verdict.Claims != nil {
		jti = verdict.Claims.ID
	}
	_ = e.auditor.Emit(ctx, audit.Event{
		Type:   audit.EventCredentialVerified,
		JTI:    jti,
		Detail: verdict.result(),
	})
	if !verdict.Valid {
		e.logger.InfoContext(ctx, "credential rejected",
			"reason", verdict.Reason,
			"detail", verdict.Detail,
			"jti", jti,
		)
	}
	return verdict, nil
}

func (e *Engine) verify(ctx context.Context, token, nonce string) (Verdict, error) {
	// 1. Structural parse, no trust established. Only used to learn who
	// claims to have signed the token.
	unverified, err := e.codec.DecodeUnverified(token)
	if err != nil {
		return invalid(ReasonMalformed, err.Error()), nil
	}

	// 2. Resolve the claimed issuer to a verification key.
	key, err := e.resolver.Resolve(unverified.Issuer)
	if err != nil {
		return invalid(ReasonUnresolvableIssuer, err.Error()), nil
	}

	// 3. Cryptographic verification and expiry.
	claims, err := e.codec.DecodeVerified(token, key)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrTokenExpired):
			return invalid(ReasonExpired, err.Error()), nil
		case errors.Is(err, credential.ErrSignatureInvalid):
			return invalid(ReasonInvalidSignature, err.Error()), nil
		default:
			return invalid(ReasonMalformed, err.Error()), nil
		}
	}

	// 4. A credential without a jti cannot be checked against the ledger.
	if claims.ID == "" {
		return invalid(ReasonMalformed, "no-jti"), nil
	}

	// 5. Anti-replay: consume the presented nonce exactly once.
	if nonce != "" {
		if err := e.challenges.Consume(ctx, nonce); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return invalid(ReasonNonceNotFound, "nonce not found"), nil
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				return invalid(ReasonNonceUsed, "nonce already used"), nil
			case errors.Is(err, sentinel.ErrExpired):
				return invalid(ReasonNonceExpired, "nonce expired"), nil
			default:
				return Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume nonce")
			}
		}
	}

	// 6. Revocation state, read fresh from the ledger.
	record, err := e.ledger.FindByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return invalid(ReasonUnknownJTI, "credential not issued by this system"), nil
		}
		return Verdict{}, dErrors.Wrap(err, dErrors.CodeInternal, "look up credential")
	}
	if record.Revoked() {
		return invalid(ReasonRevoked, "credential has been revoked"), nil
	}

	return valid(claims), nil
}

// RevokeResult reports a completed revocation.
type RevokeResult struct {
	JTI       string
	NewStatus credential.Status
}

// Revoke permanently invalidates a credential. Revoking an already-revoked
// credential is a no-op success: the end state is identical and treating it
// as an error would only complicate audit replays.
func (e *Engine) Revoke(ctx context.Context, jti string) (RevokeResult, error) {
	if jti == "" {
		return RevokeResult{}, dErrors.New(dErrors.CodeValidation, "jti is required")
	}

	if err := e.ledger.Revoke(ctx, jti); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return RevokeResult{}, dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
		}
		return RevokeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "revoke credential")
	}

	e.metrics.IncCredentialsRevoked()
	_ = e.auditor.Emit(ctx, audit.Event{
		Type: audit.EventCredentialRevoked,
		JTI:  jti,
	})
	e.logger.InfoContext(ctx, "credential revoked", "jti", jti)

	return RevokeResult{JTI: jti, NewStatus: credential.StatusRevoked}, nil
}

// Challenge issues a verifier nonce.
func (e *Engine) Challenge(ctx context.Context, ttl time.Duration) (challenge.Nonce, error) {
	nonce, err := e.challenges.Issue(ctx, ttl)
	if err != nil {
		return challenge.Nonce{}, err
	}
	_ = e.auditor.Emit(ctx, audit.Event{
		Type:   audit.EventChallengeIssued,
		Detail: nonce.ExpiresAt.Format(time.RFC3339),
	})
	return nonce, nil
}

// ListCredentials exposes the ledger for the admin dump.
func (e *Engine) ListCredentials(ctx context.Context) ([]credential.Record, error) {
	return e.ledger.List(ctx)
}
