package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/canon"
	"github.com/tedy97123/accountabiltyme/internal/eventstore/memory"
	"github.com/tedy97123/accountabiltyme/internal/httpapi"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
	"github.com/tedy97123/accountabiltyme/internal/signer"
)

func newTestServer(t *testing.T) (*httptest.Server, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store)

	kp, err := signer.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	adminID := uuid.New()
	if _, err := svc.RegisterEditor(ctx, ledger.EditorRegisteredPayload{
		EditorID:    adminID,
		Username:    "admin",
		DisplayName: "Admin",
		Role:        ledger.RoleAdmin,
		PublicKey:   kp.PublicKey,
	}, kp.PrivateKey); err != nil {
		t.Fatalf("RegisterEditor: %v", err)
	}

	claimID := uuid.New()
	if _, err := svc.DeclareClaim(ctx, ledger.ClaimDeclaredPayload{
		ClaimID:          claimID,
		Statement:        "Claim under test",
		StatementContext: "test",
		ClaimantID:       uuid.New(),
		DeclaredAt:       canon.NewInstantJSON(time.Now()),
		SourceURL:        "https://example.com",
		ClaimType:        ledger.ClaimTypePredictive,
		Scope:            ledger.Scope{Geographic: "national", PolicyDomain: "labor"},
	}, adminID, kp.PrivateKey); err != nil {
		t.Fatalf("DeclareClaim: %v", err)
	}

	srv := httpapi.NewServer(svc, store)
	ts := httptest.NewServer(httpapi.NewRouter(srv, nil))
	t.Cleanup(ts.Close)
	return ts, claimID
}

func TestHandleHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleListAndGetClaim(t *testing.T) {
	ts, claimID := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/claims")
	if err != nil {
		t.Fatalf("GET /api/v1/claims: %v", err)
	}
	defer resp.Body.Close()
	var claims []ledger.ClaimProjection
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(claims) != 1 || claims[0].ClaimID != claimID {
		t.Fatalf("claims = %+v, want one claim with ID %v", claims, claimID)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/claims/" + claimID.String())
	if err != nil {
		t.Fatalf("GET /api/v1/claims/{id}: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}

	resp3, err := http.Get(ts.URL + "/api/v1/claims/" + uuid.New().String())
	if err != nil {
		t.Fatalf("GET /api/v1/claims/{missing}: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp3.StatusCode)
	}
}

func TestHandleGetClaimBundle(t *testing.T) {
	ts, claimID := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/claims/" + claimID.String() + "/bundle")
	if err != nil {
		t.Fatalf("GET bundle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Disposition") == "" {
		t.Error("expected a Content-Disposition header on bundle download")
	}
}

func TestHandleListEditors(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/editors")
	if err != nil {
		t.Fatalf("GET /api/v1/editors: %v", err)
	}
	defer resp.Body.Close()
	var editors []ledger.EditorRecord
	if err := json.NewDecoder(resp.Body).Decode(&editors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(editors) != 1 {
		t.Fatalf("len(editors) = %d, want 1", len(editors))
	}
}

func TestHandleGetClaim_InvalidUUID(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/claims/not-a-uuid")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
