// Package credential defines the credential record, the JWT claims schema,
// and the codec that builds and parses signed tokens.
package credential

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	dErrors "passport/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token structure errors. Callers must be able to distinguish expiry from
// tampering, so these are distinct kinds rather than one opaque failure.
var (
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenExpired     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("signature invalid")
)

// TTL policy bounds, enforced at issuance (not verification).
const (
	MinTTL = 60 * time.Second
	MaxTTL = 365 * 24 * time.Hour
)

// schemaRequiredMethod marks issuers whose credentials must carry a schema
// reference. EBSI verifiers reject credentials without one.
const schemaRequiredMethod = "did:ebsi:"

// ebsiSchemaRef is the fixed schema reference injected for EBSI issuers.
var ebsiSchemaRef = map[string]any{
	"id":   "https://api.preprod.ebsi.eu/trusted-schemas-registry/v1/schemas/0x123...",
	"type": "JsonSchemaValidator2018",
}

// Claims is the token payload: standard JWT fields plus the vc envelope
// carrying the subject's business claims (event, bib, name, result, ...).
type Claims struct {
	VC map[string]any `json:"vc"`
	jwt.RegisteredClaims
}

// Envelope is the output of Encode: a fresh jti, the full claims, and the
// unsigned token ready for the caller to sign.
type Envelope struct {
	JTI      string
	Claims   *Claims
	Unsigned *jwt.Token
}

// Clock abstracts time.Now for deterministic expiry tests.
type Clock func() time.Time

// Codec builds and parses credential tokens. RS256 only.
type Codec struct {
	issuerDID string // default issuer when the payload does not name one
	clock     Clock
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) CodecOption {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCodec constructs a codec that stamps issuerDID into credentials whose
// payload does not carry an issuer of its own.
func NewCodec(issuerDID string, opts ...CodecOption) *Codec {
	c := &Codec{
		issuerDID: issuerDID,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Encode wraps subjectClaims into a vc envelope and builds the unsigned
// token. iat = nbf = now, exp = now + ttl; ttl is bounds-checked here because
// expiry policy belongs to issuance. The subjectClaims map is copied, never
// mutated.
func (c *Codec) Encode(subjectClaims map[string]any, subjectDID string, ttl time.Duration) (Envelope, error) {
	if subjectDID == "" {
		return Envelope{}, dErrors.New(dErrors.CodeValidation, "subject DID is required")
	}
	if ttl < MinTTL || ttl > MaxTTL {
		return Envelope{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("ttl must be between %s and %s", MinTTL, MaxTTL))
	}
	return c.encode(subjectClaims, subjectDID, ttl), nil
}

// encode skips the TTL policy check. Split out so tests can mint
// already-expired tokens through a backdated clock without touching policy.
func (c *Codec) encode(subjectClaims map[string]any, subjectDID string, ttl time.Duration) Envelope {
	vc := make(map[string]any, len(subjectClaims)+1)
	for k, v := range subjectClaims {
		vc[k] = v
	}

	issuer := c.issuerDID
	if payloadIssuer, ok := vc["issuer"].(string); ok && payloadIssuer != "" {
		issuer = payloadIssuer
	}

	// EBSI issuers require a schema reference; inject the fixed one when the
	// payload has none.
	if strings.HasPrefix(issuer, schemaRequiredMethod) {
		if _, ok := vc["credentialSchema"]; !ok {
			vc["credentialSchema"] = ebsiSchemaRef
		}
	}

	now := c.clock().UTC()
	jti := "vc-" + uuid.NewString()

	claims := &Claims{
		VC: vc,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectDID,
			ID:        jti,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return Envelope{
		JTI:      jti,
		Claims:   claims,
		Unsigned: jwt.NewWithClaims(jwt.SigningMethodRS256, claims),
	}
}

// DecodeUnverified parses the claims WITHOUT checking the signature. Its only
// legitimate use is discovering the issuer before key resolution; it must
// never establish trust.
func (c *Codec) DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return claims, nil
}

// DecodeVerified checks the signature with the given key and validates expiry
// against the codec clock. Algorithm is pinned to RS256; a token claiming any
// other method fails as a signature error, not a parse error.
func (c *Codec) DecodeVerified(token string, key *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(c.clock),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable),
			errors.Is(err, rsa.ErrVerification):
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}
	return claims, nil
}
