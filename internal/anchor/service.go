package anchor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Batch is a frozen commitment over a contiguous range of events: once
// created, its event list and Merkle root never change.
type Batch struct {
	ID             uuid.UUID
	EventIDs       []uuid.UUID
	EventHashes    []string
	SequenceStart  int64
	SequenceEnd    int64
	MerkleRoot     string
	CreatedAt      time.Time

	// External anchor references, populated after publishing. All
	// optional; Service.CreateBatch never sets them.
	GitCommitHash     string
	GitRepoURL        string
	BlockchainTxHash  string
	BlockchainNetwork string
	TransparencyURL   string
}

// ExternalAnchors collects whichever of Batch's external references
// have been recorded, for embedding in a VerificationResult.
func (b Batch) ExternalAnchors() map[string]any {
	refs := map[string]any{}
	if b.GitCommitHash != "" {
		refs["git"] = map[string]string{"commit_hash": b.GitCommitHash, "repo_url": b.GitRepoURL}
	}
	if b.BlockchainTxHash != "" {
		refs["blockchain"] = map[string]string{"tx_hash": b.BlockchainTxHash, "network": b.BlockchainNetwork}
	}
	if b.TransparencyURL != "" {
		refs["transparency_log"] = b.TransparencyURL
	}
	return refs
}

// VerificationResult answers "is event X anchored, and can I prove it".
type VerificationResult struct {
	Verified        bool
	EventID         uuid.UUID
	EventHash       string
	BatchID         uuid.UUID
	MerkleRoot      string
	Proof           *Proof
	ExternalAnchors map[string]any
	Message         string
}

// Service creates anchor batches and answers inclusion-proof queries.
// It holds no persistence of its own; a caller that needs batches to
// survive a restart persists Batch values and replays CreateBatch, or
// stores the fields directly — Service only owns the in-process index
// from event to batch that makes ProveEvent O(1).
type Service struct {
	mu            sync.RWMutex
	batches       map[uuid.UUID]*Batch
	eventToBatch  map[uuid.UUID]uuid.UUID
	eventToHash   map[uuid.UUID]string
}

// NewService returns an empty Service.
func NewService() *Service {
	return &Service{
		batches:      make(map[uuid.UUID]*Batch),
		eventToBatch: make(map[uuid.UUID]uuid.UUID),
		eventToHash:  make(map[uuid.UUID]string),
	}
}

// CreateBatch builds a Merkle tree over eventHashes (in the given
// order, leaves in the same order as eventIDs) and freezes it as a new
// Batch. No eventID may already belong to an existing batch — an event
// anchors at most once.
func (s *Service) CreateBatch(eventIDs []uuid.UUID, eventHashes []string, sequenceStart, sequenceEnd int64) (*Batch, error) {
	if len(eventIDs) != len(eventHashes) {
		return nil, fmt.Errorf("anchor: event_ids and event_hashes must have the same length")
	}
	if len(eventIDs) == 0 {
		return nil, fmt.Errorf("anchor: cannot create an empty anchor batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range eventIDs {
		if existing, ok := s.eventToBatch[id]; ok {
			return nil, fmt.Errorf("anchor: event %s is already anchored in batch %s", id, existing)
		}
	}

	tree, err := NewMerkleTree(eventHashes)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:            uuid.New(),
		EventIDs:      append([]uuid.UUID(nil), eventIDs...),
		EventHashes:   append([]string(nil), eventHashes...),
		SequenceStart: sequenceStart,
		SequenceEnd:   sequenceEnd,
		MerkleRoot:    tree.RootHash(),
		CreatedAt:     time.Now().UTC(),
	}

	for i, id := range eventIDs {
		s.eventToBatch[id] = batch.ID
		s.eventToHash[id] = eventHashes[i]
	}
	s.batches[batch.ID] = batch

	return batch, nil
}

// ProveEvent builds a complete, independently verifiable inclusion
// proof for eventID. The second return value is false if eventID has
// not yet been anchored.
func (s *Service) ProveEvent(eventID uuid.UUID) (VerificationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batchID, ok := s.eventToBatch[eventID]
	if !ok {
		return VerificationResult{}, false
	}
	batch := s.batches[batchID]
	eventHash := s.eventToHash[eventID]

	tree, err := NewMerkleTree(batch.EventHashes)
	if err != nil {
		return VerificationResult{
			EventID: eventID, EventHash: eventHash, BatchID: batchID,
			MerkleRoot: batch.MerkleRoot, Message: fmt.Sprintf("failed to rebuild tree: %v", err),
		}, true
	}

	proof, found := tree.BuildProof(eventHash)
	if !found {
		return VerificationResult{
			EventID: eventID, EventHash: eventHash, BatchID: batchID,
			MerkleRoot: batch.MerkleRoot,
			Message:    "failed to generate proof (event not found in tree)",
		}, true
	}

	verified := VerifyProof(proof)
	message := "proof verification failed"
	if verified {
		message = "event is anchored and proof verified"
	}

	return VerificationResult{
		Verified:        verified,
		EventID:         eventID,
		EventHash:       eventHash,
		BatchID:         batchID,
		MerkleRoot:      batch.MerkleRoot,
		Proof:           &proof,
		ExternalAnchors: batch.ExternalAnchors(),
		Message:         message,
	}, true
}

// IsAnchored reports whether eventID belongs to any batch.
func (s *Service) IsAnchored(eventID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.eventToBatch[eventID]
	return ok
}

// UnanchoredOf filters eventIDs down to the ones not yet in any batch,
// preserving order.
func (s *Service) UnanchoredOf(eventIDs []uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for _, id := range eventIDs {
		if _, ok := s.eventToBatch[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// GetBatch returns a previously created batch by ID.
func (s *Service) GetBatch(batchID uuid.UUID) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	return b, ok
}

// GetBatchForEvent returns the batch containing eventID, if any.
func (s *Service) GetBatchForEvent(eventID uuid.UUID) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batchID, ok := s.eventToBatch[eventID]
	if !ok {
		return nil, false
	}
	b, ok := s.batches[batchID]
	return b, ok
}

// SetGitAnchor records that batchID was published to a Git transparency
// repository.
func (s *Service) SetGitAnchor(batchID uuid.UUID, commitHash, repoURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.batches[batchID]; ok {
		b.GitCommitHash = commitHash
		b.GitRepoURL = repoURL
	}
}

// SetBlockchainAnchor records that batchID was published to a public
// blockchain.
func (s *Service) SetBlockchainAnchor(batchID uuid.UUID, txHash, network string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.batches[batchID]; ok {
		b.BlockchainTxHash = txHash
		b.BlockchainNetwork = network
	}
}
