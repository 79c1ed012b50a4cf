package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/bundle"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

// Server holds the dependencies needed by the projection handlers. It
// never writes to the ledger; store is consulted only to assemble
// bundles, which need every event, not just the current projection.
type Server struct {
	svc   *ledger.Service
	store ledger.EventStore
}

// NewServer creates a Server backed by svc and store. store should be
// the same EventStore svc was constructed with.
func NewServer(svc *ledger.Service, store ledger.EventStore) *Server {
	return &Server{svc: svc, store: store}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListClaims responds to GET /api/v1/claims with every claim's
// current projection.
func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	claims := s.svc.ListClaims()
	if claims == nil {
		claims = []ledger.ClaimProjection{}
	}
	writeJSON(w, http.StatusOK, claims)
}

// handleGetClaim responds to GET /api/v1/claims/{id} with one claim's
// current projection.
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'id' must be a valid UUID")
		return
	}

	claim, ok := s.svc.GetClaim(claimID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("claim %s not found", claimID))
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// handleListEditors responds to GET /api/v1/editors with the editor
// roster. Pass ?active_only=true to omit deactivated editors.
func (s *Server) handleListEditors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	editors := s.svc.ListEditors(activeOnly)
	if editors == nil {
		editors = []ledger.EditorRecord{}
	}
	writeJSON(w, http.StatusOK, editors)
}

// handleGetClaimBundle responds to GET /api/v1/claims/{id}/bundle with
// the self-contained verification bundle of §4.6, streamed as a file
// download.
func (s *Server) handleGetClaimBundle(w http.ResponseWriter, r *http.Request) {
	claimID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'id' must be a valid UUID")
		return
	}

	state, ok := s.svc.GetClaimState(claimID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("claim %s not found", claimID))
		return
	}

	allEvents, err := s.store.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	chainIntact, err := s.svc.VerifyChain(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify chain")
		return
	}

	b, err := bundle.Export(claimID, state, allEvents, s.svc.ListEditors(false), chainIntact)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bundle.Filename(claimID)))
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
