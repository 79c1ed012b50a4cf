package httpapi

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for the read-only ledger
// projection API.
//
// Route layout:
//
//	GET /healthz                     – liveness probe, no authentication
//	GET /api/v1/claims               – every claim's current projection
//	GET /api/v1/claims/{id}          – one claim's current projection
//	GET /api/v1/claims/{id}/bundle   – a self-contained verification bundle
//	GET /api/v1/editors              – the editor roster
//
// pubKey is the RSA public key used to verify RS256 Bearer tokens on all
// /api routes. Pass nil to disable JWT validation.
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTMiddleware(pubKey))
		}

		r.Get("/claims", srv.handleListClaims)
		r.Get("/claims/{id}", srv.handleGetClaim)
		r.Get("/claims/{id}/bundle", srv.handleGetClaimBundle)
		r.Get("/editors", srv.handleListEditors)
	})

	return r
}
