package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration pulled from the environment so
// main stays lean. Key material precedence is handled by the key store, not
// here; this struct only carries the raw values through.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	// PrivateKey and PublicKey are either inline PEM or a filesystem path;
	// empty means "use the default path". See internal/keys.
	PrivateKey string
	PublicKey  string

	// IssuerDID is the default issuer identifier stamped into credentials
	// when the request payload does not carry one.
	IssuerDID string

	// AdminToken guards the revocation and dump endpoints. Empty means the
	// admin surface is disabled (fails closed).
	AdminToken string

	ChallengeTTL time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. DATABASE_URL empty selects the in-memory ledgers.
func FromEnv() Config {
	addr := os.Getenv("PASSPORT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	issuer := os.Getenv("VC_ISS")
	if issuer == "" {
		issuer = "did:web:demo"
	}

	challengeTTL := 60 * time.Second
	if raw := os.Getenv("CHALLENGE_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			challengeTTL = time.Duration(secs) * time.Second
		}
	}

	return Config{
		Addr:         addr,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		PrivateKey:   os.Getenv("VC_PRIV"),
		PublicKey:    os.Getenv("VC_PUB"),
		IssuerDID:    issuer,
		AdminToken:   os.Getenv("ADMIN_TOKEN"),
		ChallengeTTL: challengeTTL,
	}
}
