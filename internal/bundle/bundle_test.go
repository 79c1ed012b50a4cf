package bundle_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/bundle"
	"github.com/tedy97123/accountabiltyme/internal/canon"
	"github.com/tedy97123/accountabiltyme/internal/eventstore/memory"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
	"github.com/tedy97123/accountabiltyme/internal/signer"
)

type testEditor struct {
	id      uuid.UUID
	keypair signer.Keypair
}

func newTestEditor(t *testing.T) testEditor {
	t.Helper()
	kp, err := signer.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return testEditor{id: uuid.New(), keypair: kp}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("time.Parse(%q): %v", s, err)
	}
	return parsed
}

// buildResolvedClaim runs a full declare -> operationalize -> evidence ->
// resolve lifecycle and returns the service, the claim id, and every
// event in the store.
func buildResolvedClaim(t *testing.T) (*ledger.Service, uuid.UUID, []ledger.Event) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store)

	admin := newTestEditor(t)
	if _, err := svc.RegisterEditor(ctx, ledger.EditorRegisteredPayload{
		EditorID:    admin.id,
		Username:    "genesis-admin",
		DisplayName: "Genesis Admin",
		Role:        ledger.RoleAdmin,
		PublicKey:   admin.keypair.PublicKey,
	}, admin.keypair.PrivateKey); err != nil {
		t.Fatalf("RegisterEditor: %v", err)
	}

	claimID := uuid.New()
	if _, err := svc.DeclareClaim(ctx, ledger.ClaimDeclaredPayload{
		ClaimID:          claimID,
		Statement:        "Unemployment will fall below 4% within a year.",
		StatementContext: "State of the address",
		ClaimantID:       uuid.New(),
		DeclaredAt:       canon.NewInstantJSON(mustTime(t, "2026-01-01T00:00:00Z")),
		SourceURL:        "https://example.com/speech",
		ClaimType:        ledger.ClaimTypePredictive,
		Scope: ledger.Scope{
			Geographic:   "national",
			PolicyDomain: "labor",
		},
	}, admin.id, admin.keypair.PrivateKey); err != nil {
		t.Fatalf("DeclareClaim: %v", err)
	}

	if _, err := svc.OperationalizeClaim(ctx, ledger.ClaimOperationalizedPayload{
		ClaimID:                    claimID,
		ExpectedOutcomeDescription: "BLS unemployment rate under 4%",
		Metrics:                    []string{"bls_unemployment_rate"},
		DirectionOfChange:          "decrease",
		Timeframe: ledger.Timeframe{
			StartDate:      "2026-01-01",
			EvaluationDate: "2027-01-01",
		},
		SuccessConditions: []string{"rate < 4.0"},
	}, admin.id, admin.keypair.PrivateKey); err != nil {
		t.Fatalf("OperationalizeClaim: %v", err)
	}

	evidenceID := uuid.New()
	if _, err := svc.AddEvidence(ctx, ledger.EvidenceAddedPayload{
		EvidenceID:            evidenceID,
		ClaimID:               claimID,
		SourceURL:             "https://bls.gov/data",
		SourceTitle:           "Employment Situation",
		SourcePublisher:       "BLS",
		SourceDate:            canon.NewDateJSON(mustTime(t, "2027-01-02T00:00:00Z")),
		SourceType:            ledger.SourceTypePrimary,
		EvidenceType:          ledger.EvidenceTypeStatisticalData,
		Summary:               "Rate fell to 3.8%",
		RelevanceExplanation:  "directly measures the operationalized metric",
		Confidence:            canon.DecimalString("0.95"),
	}, admin.id, admin.keypair.PrivateKey); err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}

	if _, err := svc.ResolveClaim(ctx, ledger.ClaimResolvedPayload{
		ClaimID:                claimID,
		Resolution:             ledger.ResolutionMet,
		SupportingEvidenceIDs:  []uuid.UUID{evidenceID},
	}, admin.id, admin.keypair.PrivateKey); err != nil {
		t.Fatalf("ResolveClaim: %v", err)
	}

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	return svc, claimID, events
}

func exportBundle(t *testing.T, svc *ledger.Service, claimID uuid.UUID, events []ledger.Event) *bundle.Bundle {
	t.Helper()
	state, ok := svc.GetClaimState(claimID)
	if !ok {
		t.Fatal("GetClaimState: claim not found")
	}
	chainIntact, err := svc.VerifyChain(context.Background())
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	b, err := bundle.Export(claimID, state, events, svc.ListEditors(false), chainIntact)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return b
}

func writeBundleFile(t *testing.T, b *bundle.Bundle) string {
	t.Helper()
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

// S6 — bundle tamper, per the golden scenarios.
func TestExportAndVerify_S6_BundleTamper(t *testing.T) {
	svc, claimID, events := buildResolvedClaim(t)
	b := exportBundle(t, svc, claimID, events)

	if len(b.Events) != 4 {
		t.Fatalf("len(b.Events) = %d, want 4 (declare, operationalize, evidence, resolve)", len(b.Events))
	}

	path := writeBundleFile(t, b)
	report, err := bundle.Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Result != bundle.ResultVerified {
		t.Fatalf("Result = %v, want VERIFIED (failed: %v)", report.Result, report.Failed)
	}
	if bundle.ExitCode(report.Result) != 0 {
		t.Errorf("ExitCode = %d, want 0", bundle.ExitCode(report.Result))
	}

	// Mutate one character of an event's payload field.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal for mutation: %v", err)
	}
	events2 := parsed["events"].([]any)
	firstEvent := events2[0].(map[string]any)
	payload := firstEvent["payload"].(map[string]any)
	payload["statement"] = payload["statement"].(string) + "X"

	mutated, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal mutated: %v", err)
	}
	mutatedPath := filepath.Join(t.TempDir(), "mutated.json")
	if err := os.WriteFile(mutatedPath, mutated, 0o600); err != nil {
		t.Fatalf("write mutated: %v", err)
	}

	report2, err := bundle.Verify(mutatedPath)
	if err != nil {
		t.Fatalf("Verify(mutated): %v", err)
	}
	if report2.Result != bundle.ResultTampered {
		t.Fatalf("Result = %v, want TAMPERED", report2.Result)
	}
	if bundle.ExitCode(report2.Result) != 1 {
		t.Errorf("ExitCode = %d, want 1", bundle.ExitCode(report2.Result))
	}

	// Delete the editors section.
	delete(parsed, "editors")
	incomplete, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal incomplete: %v", err)
	}
	incompletePath := filepath.Join(t.TempDir(), "incomplete.json")
	if err := os.WriteFile(incompletePath, incomplete, 0o600); err != nil {
		t.Fatalf("write incomplete: %v", err)
	}

	report3, err := bundle.Verify(incompletePath)
	if err != nil {
		t.Fatalf("Verify(incomplete): %v", err)
	}
	if report3.Result != bundle.ResultIncomplete {
		t.Fatalf("Result = %v, want INCOMPLETE", report3.Result)
	}
	if bundle.ExitCode(report3.Result) != 2 {
		t.Errorf("ExitCode = %d, want 2", bundle.ExitCode(report3.Result))
	}
}

func TestVerify_InvalidFormat_UnreadableFile(t *testing.T) {
	report, err := bundle.Verify(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Result != bundle.ResultInvalidFormat {
		t.Fatalf("Result = %v, want INVALID_FORMAT", report.Result)
	}
	if bundle.ExitCode(report.Result) != 3 {
		t.Errorf("ExitCode = %d, want 3", bundle.ExitCode(report.Result))
	}
}

func TestVerify_InvalidFormat_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	report, err := bundle.Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Result != bundle.ResultInvalidFormat {
		t.Fatalf("Result = %v, want INVALID_FORMAT", report.Result)
	}
}

func TestExport_NoEventsForClaimErrors(t *testing.T) {
	_, err := bundle.Export(uuid.New(), ledger.ClaimStateDeclared, nil, nil, true)
	if err == nil {
		t.Fatal("expected error exporting a claim with no events")
	}
}
