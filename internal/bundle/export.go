// Package bundle externalizes a claim's full event history into a
// single self-contained JSON file (export.go) and independently
// verifies one (verify.go), per spec.md §4.6/§6. A bundle carries
// everything a verifier needs — events, signatures, and editor public
// keys — without access to the live ledger.
package bundle

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/canon"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
)

// FormatVersion is the bundle's own JSON-shape version, independent of
// CanonVersion (which versions payload hashing) and SpecVersion (which
// versions the ledger semantics).
const FormatVersion = 1

// SpecVersion is recorded in every bundle so a verifier knows which
// semantics produced it.
const SpecVersion = "accountabilityme-ledger/1"

// Meta is the bundle's "_meta" section.
type Meta struct {
	BundleFormatVersion     int       `json:"bundle_format_version"`
	CanonicalizationVersion int       `json:"canonicalization_version"`
	SpecVersion             string    `json:"spec_version"`
	ExportedAt              time.Time `json:"exported_at"`
	ClaimID                 uuid.UUID `json:"claim_id"`
	ChainIntactAtExport     bool      `json:"chain_intact_at_export"`
}

// Verification is the bundle's "_verification" section: a recipe a
// verifier follows, restated so the bundle is meaningful without the
// spec in hand.
type Verification struct {
	HashAlgorithm           string `json:"hash_algorithm"`
	SignatureAlgorithm      string `json:"signature_algorithm"`
	CanonicalizationVersion int    `json:"canonicalization_version"`
	Recipe                  string `json:"recipe"`
}

const recipeText = "For each event, canonicalize its payload (internal/canon), " +
	"prepend previous_event_hash (lowercase) followed by ':' (nothing is prepended " +
	"for the genesis event, which has no previous_event_hash), SHA-256 the result, " +
	"and compare to event_hash. " +
	"Then verify editor_signature is a valid Ed25519 signature over event_hash's " +
	"hex string under the referenced editor's public_key. Then verify " +
	"events[i].previous_event_hash == events[i-1].event_hash for all i >= 1."

// ClaimSummary is the bundle's "claim" section.
type ClaimSummary struct {
	ClaimID    uuid.UUID        `json:"claim_id"`
	Status     ledger.ClaimState `json:"status"`
	EventCount int              `json:"event_count"`
}

// Event is one event as embedded in a bundle: every field a verifier
// needs, with Payload re-serialized via the struct's own JSON tags (the
// same shape ledger.DecodePayload expects) rather than pre-canonicalized
// bytes — canonicalization happens at verify time, from this JSON, not
// before it.
type Event struct {
	EventID           uuid.UUID         `json:"event_id"`
	SequenceNumber    int64             `json:"sequence_number"`
	EventType         ledger.EventType  `json:"event_type"`
	EntityType        ledger.EntityType `json:"entity_type"`
	EntityID          uuid.UUID         `json:"entity_id"`
	CreatedBy         uuid.UUID         `json:"created_by"`
	Payload           json.RawMessage   `json:"payload"`
	PreviousEventHash *string           `json:"previous_event_hash"`
	EventHash         string            `json:"event_hash"`
	EditorSignature   string            `json:"editor_signature"`
	CreatedAt         time.Time         `json:"created_at"`
	AnchorBatchID     *uuid.UUID        `json:"anchor_batch_id,omitempty"`
	MerkleProof       json.RawMessage   `json:"merkle_proof,omitempty"`
}

// Editor is the subset of an editor's record a verifier needs.
type Editor struct {
	PublicKey   string      `json:"public_key"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Role        ledger.Role `json:"role"`
}

// Bundle is the complete externalized trust object for one claim.
type Bundle struct {
	Meta         Meta              `json:"_meta"`
	Verification Verification      `json:"_verification"`
	Claim        ClaimSummary      `json:"claim"`
	Events       []Event           `json:"events"`
	Editors      map[string]Editor `json:"editors"`
}

// Export builds a Bundle for claimID from allEvents (every event in the
// store, not pre-filtered) and the current editor roster. chainIntact
// should be the result of ledger.Service.VerifyChain at export time.
func Export(claimID uuid.UUID, status ledger.ClaimState, allEvents []ledger.Event, editors []ledger.EditorRecord, chainIntact bool) (*Bundle, error) {
	var claimEvents []ledger.Event
	for _, ev := range allEvents {
		if belongsToClaim(ev, claimID) {
			claimEvents = append(claimEvents, ev)
		}
	}
	sort.Slice(claimEvents, func(i, j int) bool {
		return claimEvents[i].SequenceNumber < claimEvents[j].SequenceNumber
	})
	if len(claimEvents) == 0 {
		return nil, fmt.Errorf("bundle: claim %s has no events to export", claimID)
	}

	events := make([]Event, 0, len(claimEvents))
	referencedEditors := map[uuid.UUID]bool{}
	for _, ev := range claimEvents {
		payloadJSON, err := ev.PayloadJSON()
		if err != nil {
			return nil, fmt.Errorf("bundle: export event %s: %w", ev.EventID, err)
		}
		events = append(events, Event{
			EventID:           ev.EventID,
			SequenceNumber:    ev.SequenceNumber,
			EventType:         ev.EventType,
			EntityType:        ev.EntityType,
			EntityID:          ev.EntityID,
			CreatedBy:         ev.CreatedBy,
			Payload:           payloadJSON,
			PreviousEventHash: ev.PreviousEventHash,
			EventHash:         ev.EventHash,
			EditorSignature:   ev.EditorSignature,
			CreatedAt:         ev.CreatedAt,
			AnchorBatchID:     ev.AnchorBatchID,
			MerkleProof:       ev.MerkleProof,
		})
		referencedEditors[ev.CreatedBy] = true
	}

	editorMap := make(map[string]Editor, len(referencedEditors))
	for _, e := range editors {
		if !referencedEditors[e.EditorID] {
			continue
		}
		editorMap[e.EditorID.String()] = Editor{
			PublicKey:   e.PublicKey,
			Username:    e.Username,
			DisplayName: e.DisplayName,
			Role:        e.Role,
		}
	}

	return &Bundle{
		Meta: Meta{
			BundleFormatVersion:     FormatVersion,
			CanonicalizationVersion: canon.Version,
			SpecVersion:             SpecVersion,
			ExportedAt:              time.Now().UTC(),
			ClaimID:                 claimID,
			ChainIntactAtExport:     chainIntact,
		},
		Verification: Verification{
			HashAlgorithm:           "sha256",
			SignatureAlgorithm:      "ed25519",
			CanonicalizationVersion: canon.Version,
			Recipe:                  recipeText,
		},
		Claim: ClaimSummary{
			ClaimID:    claimID,
			Status:     status,
			EventCount: len(events),
		},
		Events:  events,
		Editors: editorMap,
	}, nil
}

// belongsToClaim reports whether ev is part of claimID's history: either
// its entity IS the claim, or (for evidence events) its payload
// references the claim.
func belongsToClaim(ev ledger.Event, claimID uuid.UUID) bool {
	if ev.EntityType == ledger.EntityClaim && ev.EntityID == claimID {
		return true
	}
	if scoped, ok := ev.Payload.(ledger.ClaimScoped); ok {
		return scoped.ClaimIdentifier() == claimID
	}
	return false
}

// Filename returns the conventional export filename for claimID.
func Filename(claimID uuid.UUID) string {
	return fmt.Sprintf("claim-%s-bundle.json", claimID.String()[:8])
}
