package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "passport/pkg/domain-errors"
)

// NewRouter wires all public endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Post("/issuer/issue", h.handleIssue)

	r.Get("/verifier/challenge", h.handleChallenge)
	r.Post("/verifier/verify", h.handleVerify)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/revoke", h.handleRevoke)
		r.Get("/db", h.handleAdminDump)
	})

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requireAdmin guards privileged endpoints. Two strategies, matching the
// original operator workflow: an Authorization bearer header for API
// clients, or a token query parameter for browser access. A server with no
// admin token configured rejects everything (fail closed).
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			writeError(w, dErrors.New(dErrors.CodeInternal, "ADMIN_TOKEN is not configured"))
			return
		}
		if tokenMatches(h.adminToken, r.URL.Query().Get("token")) {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok && tokenMatches(h.adminToken, strings.TrimSpace(after)) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid admin credentials"))
	})
}

func tokenMatches(expected, got string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
