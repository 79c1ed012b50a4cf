package anchor_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/tedy97123/accountabiltyme/internal/anchor"
)

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestNewMerkleTree_EmptyRejected(t *testing.T) {
	if _, err := anchor.NewMerkleTree(nil); err == nil {
		t.Fatal("expected error for empty hash list")
	}
}

func TestNewMerkleTree_SingleLeaf_RootIsSelfPair(t *testing.T) {
	leaf := hashOf("event-1")
	tree, err := anchor.NewMerkleTree([]string{leaf})
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}

	sum := sha256.Sum256([]byte(leaf + leaf))
	want := hex.EncodeToString(sum[:])
	if tree.RootHash() != want {
		t.Errorf("RootHash() = %q, want %q (self-pair of the single leaf)", tree.RootHash(), want)
	}
}

func TestBuildProof_VerifiesForEveryLeaf(t *testing.T) {
	hashes := []string{hashOf("e1"), hashOf("e2"), hashOf("e3"), hashOf("e4")}
	tree, err := anchor.NewMerkleTree(hashes)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}

	for _, h := range hashes {
		proof, ok := tree.BuildProof(h)
		if !ok {
			t.Fatalf("BuildProof(%q): not found", h)
		}
		if !anchor.VerifyProof(proof) {
			t.Errorf("VerifyProof failed for leaf %q", h)
		}
	}
}

func TestBuildProof_OddLeafCount(t *testing.T) {
	hashes := []string{hashOf("e1"), hashOf("e2"), hashOf("e3")}
	tree, err := anchor.NewMerkleTree(hashes)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	for _, h := range hashes {
		proof, ok := tree.BuildProof(h)
		if !ok || !anchor.VerifyProof(proof) {
			t.Errorf("proof for %q failed (ok=%v)", h, ok)
		}
	}
}

func TestVerifyProof_FlippedDirectionFails(t *testing.T) {
	hashes := []string{hashOf("e1"), hashOf("e2"), hashOf("e3"), hashOf("e4")}
	tree, err := anchor.NewMerkleTree(hashes)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	proof, ok := tree.BuildProof(hashes[1])
	if !ok {
		t.Fatal("BuildProof: not found")
	}
	for i, d := range proof.Directions {
		if d == anchor.DirectionLeft {
			proof.Directions[i] = anchor.DirectionRight
		} else {
			proof.Directions[i] = anchor.DirectionLeft
		}
	}
	if anchor.VerifyProof(proof) {
		t.Error("VerifyProof should fail after flipping every direction")
	}
}

func TestVerifyProof_SwappedProofHashesFails(t *testing.T) {
	hashes := []string{hashOf("e1"), hashOf("e2"), hashOf("e3"), hashOf("e4")}
	tree, err := anchor.NewMerkleTree(hashes)
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	proof, ok := tree.BuildProof(hashes[1])
	if !ok {
		t.Fatal("BuildProof: not found")
	}
	if len(proof.Hashes) < 2 {
		t.Skip("tree depth too small to swap proof hashes")
	}
	proof.Hashes[0], proof.Hashes[1] = proof.Hashes[1], proof.Hashes[0]
	if anchor.VerifyProof(proof) {
		t.Error("VerifyProof should fail after swapping proof hashes")
	}
}

func TestBuildProof_UnknownLeafNotFound(t *testing.T) {
	tree, err := anchor.NewMerkleTree([]string{hashOf("e1"), hashOf("e2")})
	if err != nil {
		t.Fatalf("NewMerkleTree: %v", err)
	}
	if _, ok := tree.BuildProof(hashOf("not-in-tree")); ok {
		t.Error("expected BuildProof to report not found")
	}
}
