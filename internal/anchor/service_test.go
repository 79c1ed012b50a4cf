package anchor_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/anchor"
)

func TestCreateBatch_RejectsMismatchedLengths(t *testing.T) {
	svc := anchor.NewService()
	_, err := svc.CreateBatch([]uuid.UUID{uuid.New(), uuid.New()}, []string{hashOf("e1")}, 0, 1)
	if err == nil {
		t.Fatal("expected error for mismatched event_ids/event_hashes lengths")
	}
}

func TestCreateBatch_RejectsEmptyBatch(t *testing.T) {
	svc := anchor.NewService()
	if _, err := svc.CreateBatch(nil, nil, 0, 0); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestCreateBatch_RejectsDoubleAnchor(t *testing.T) {
	svc := anchor.NewService()
	id := uuid.New()
	hash := hashOf("e1")

	if _, err := svc.CreateBatch([]uuid.UUID{id}, []string{hash}, 0, 0); err != nil {
		t.Fatalf("first CreateBatch: %v", err)
	}
	if _, err := svc.CreateBatch([]uuid.UUID{id}, []string{hash}, 1, 1); err == nil {
		t.Fatal("expected error anchoring the same event twice")
	}
}

// S5 — Merkle inclusion and tamper, per the ledger golden scenarios:
// create a batch of 4 events, prove the second, verify standalone, then
// show that flipping every direction or swapping proof hash order each
// break verification independently.
func TestProveEvent_S5_MerkleInclusionAndTamper(t *testing.T) {
	svc := anchor.NewService()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	hashes := []string{hashOf("e1"), hashOf("e2"), hashOf("e3"), hashOf("e4")}

	batch, err := svc.CreateBatch(ids, hashes, 0, 3)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	result, ok := svc.ProveEvent(ids[1])
	if !ok {
		t.Fatal("ProveEvent: event not found")
	}
	if !result.Verified {
		t.Fatalf("result.Verified = false, want true (message: %s)", result.Message)
	}
	if result.BatchID != batch.ID {
		t.Errorf("BatchID = %v, want %v", result.BatchID, batch.ID)
	}
	if result.MerkleRoot != batch.MerkleRoot {
		t.Errorf("MerkleRoot = %q, want %q", result.MerkleRoot, batch.MerkleRoot)
	}

	flipped := *result.Proof
	flipped.Directions = append([]anchor.Direction(nil), flipped.Directions...)
	for i, d := range flipped.Directions {
		if d == anchor.DirectionLeft {
			flipped.Directions[i] = anchor.DirectionRight
		} else {
			flipped.Directions[i] = anchor.DirectionLeft
		}
	}
	if anchor.VerifyProof(flipped) {
		t.Error("VerifyProof should fail after flipping every direction")
	}

	if len(result.Proof.Hashes) >= 2 {
		swapped := *result.Proof
		swapped.Hashes = append([]string(nil), swapped.Hashes...)
		swapped.Hashes[0], swapped.Hashes[1] = swapped.Hashes[1], swapped.Hashes[0]
		if anchor.VerifyProof(swapped) {
			t.Error("VerifyProof should fail after swapping proof_hashes order")
		}
	}
}

func TestProveEvent_UnknownEventNotFound(t *testing.T) {
	svc := anchor.NewService()
	if _, ok := svc.ProveEvent(uuid.New()); ok {
		t.Error("ProveEvent should report not found for an unanchored event")
	}
}

func TestProveEvent_SingleEventBatch_RootIsSelfPair(t *testing.T) {
	svc := anchor.NewService()
	id := uuid.New()
	hash := hashOf("solo")

	batch, err := svc.CreateBatch([]uuid.UUID{id}, []string{hash}, 0, 0)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	tree, err := anchor.NewMerkleTree([]string{hash})
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	if batch.MerkleRoot != tree.RootHash() {
		t.Errorf("batch.MerkleRoot = %q, want %q", batch.MerkleRoot, tree.RootHash())
	}

	result, ok := svc.ProveEvent(id)
	if !ok || !result.Verified {
		t.Fatalf("ProveEvent: ok=%v verified=%v message=%s", ok, result.Verified, result.Message)
	}
}

func TestIsAnchoredAndUnanchoredOf(t *testing.T) {
	svc := anchor.NewService()
	anchored := uuid.New()
	unanchored := uuid.New()

	if _, err := svc.CreateBatch([]uuid.UUID{anchored}, []string{hashOf("a")}, 0, 0); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if !svc.IsAnchored(anchored) {
		t.Error("expected anchored event to report IsAnchored = true")
	}
	if svc.IsAnchored(unanchored) {
		t.Error("expected unanchored event to report IsAnchored = false")
	}

	remaining := svc.UnanchoredOf([]uuid.UUID{anchored, unanchored})
	if len(remaining) != 1 || remaining[0] != unanchored {
		t.Errorf("UnanchoredOf = %v, want [%v]", remaining, unanchored)
	}
}

func TestSetGitAnchor_RecordsExternalAnchor(t *testing.T) {
	svc := anchor.NewService()
	id := uuid.New()
	batch, err := svc.CreateBatch([]uuid.UUID{id}, []string{hashOf("a")}, 0, 0)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	svc.SetGitAnchor(batch.ID, "abc123", "https://example.com/repo")

	result, ok := svc.ProveEvent(id)
	if !ok {
		t.Fatal("ProveEvent: not found")
	}
	git, ok := result.ExternalAnchors["git"]
	if !ok {
		t.Fatal("expected ExternalAnchors to contain a git entry")
	}
	gitRef, ok := git.(map[string]string)
	if !ok || gitRef["commit_hash"] != "abc123" {
		t.Errorf("git anchor = %#v, want commit_hash=abc123", git)
	}
}
