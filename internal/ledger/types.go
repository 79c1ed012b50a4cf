// Package ledger implements the event-sourced, append-only claim
// accountability ledger: editorial identity, the claim lifecycle state
// machine, and chain-integrity verification. Storage is delegated to an
// internal/eventstore implementation; this package owns business rules
// and cryptography, never persistence.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/canon"
)

// EventType names one of the closed set of events this ledger will ever
// record. New members may be added in the future; existing ones are
// never removed or renumbered.
type EventType string

const (
	EventEditorRegistered      EventType = "EDITOR_REGISTERED"
	EventEditorDeactivated     EventType = "EDITOR_DEACTIVATED"
	EventClaimDeclared         EventType = "CLAIM_DECLARED"
	EventClaimOperationalized  EventType = "CLAIM_OPERATIONALIZED"
	EventEvidenceAdded         EventType = "EVIDENCE_ADDED"
	EventClaimResolved         EventType = "CLAIM_RESOLVED"
)

// EntityType identifies which kind of entity an event's entity_id
// refers to.
type EntityType string

const (
	EntityEditor   EntityType = "editor"
	EntityClaim    EntityType = "claim"
	EntityEvidence EntityType = "evidence"
)

// Role is an editor's standing within the ledger. Only "admin" may
// register or deactivate other editors.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSenior   Role = "senior"
	RoleEditor   Role = "editor"
	RoleReviewer Role = "reviewer"
)

// ClaimState is a claim's position in its one-way lifecycle.
type ClaimState string

const (
	ClaimStateDeclared       ClaimState = "declared"
	ClaimStateOperationalized ClaimState = "operationalized"
	ClaimStateObserving      ClaimState = "observing"
	ClaimStateResolved       ClaimState = "resolved"
)

// EditorRecord is the immutable-once-registered identity of an editor.
// Only IsActive ever changes after registration; PublicKey never does.
type EditorRecord struct {
	EditorID     uuid.UUID
	Username     string
	DisplayName  string
	Role         Role
	PublicKey    string
	IsActive     bool
	RegisteredAt time.Time
	RegisteredBy *uuid.UUID // nil for the genesis editor only
}

// ClaimProjection is the current derived state of one claim: its
// lifecycle position and the evidence attached to it so far. It is a
// projection, never the source of truth — rebuilt by replaying events.
type ClaimProjection struct {
	ClaimID     uuid.UUID
	State       ClaimState
	EvidenceIDs []uuid.UUID
}

// HasEvidence reports whether evidenceID has been attached to this claim.
func (c *ClaimProjection) HasEvidence(evidenceID uuid.UUID) bool {
	for _, id := range c.EvidenceIDs {
		if id == evidenceID {
			return true
		}
	}
	return false
}

// EventPayload is implemented by every CLAIM_*/EDITOR_*/EVIDENCE_* payload
// struct. Canon builds the payload's canonical Value for hashing; the
// same struct's json tags are what gets persisted as payload_json and
// embedded in exported bundles.
type EventPayload interface {
	Canon() (canon.Value, error)
}

// Event is one immutable, hash-chained record in the ledger.
type Event struct {
	EventID           uuid.UUID
	SequenceNumber    int64
	EventType         EventType
	EntityID          uuid.UUID
	EntityType        EntityType
	Payload           EventPayload
	PreviousEventHash *string
	EventHash         string
	CreatedBy         uuid.UUID
	EditorSignature   string
	CreatedAt         time.Time
	AnchorBatchID     *uuid.UUID
	MerkleProof       json.RawMessage // opaque; populated by internal/anchor once batched
}

// PayloadJSON marshals Payload the same way it is persisted to an
// EventStore and embedded in an export bundle.
func (e Event) PayloadJSON() (json.RawMessage, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal payload for event %s: %w", e.EventID, err)
	}
	return b, nil
}

// DecodePayload reconstructs a typed EventPayload from raw JSON given
// its event type. Used when replaying events loaded from an EventStore.
func DecodePayload(eventType EventType, raw json.RawMessage) (EventPayload, error) {
	var (
		payload EventPayload
		err     error
	)
	switch eventType {
	case EventEditorRegistered:
		var p EditorRegisteredPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventEditorDeactivated:
		var p EditorDeactivatedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventClaimDeclared:
		var p ClaimDeclaredPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventClaimOperationalized:
		var p ClaimOperationalizedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventEvidenceAdded:
		var p EvidenceAddedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case EventClaimResolved:
		var p ClaimResolvedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: unrecognized event type %q", ErrValidation, eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrValidation, eventType, err)
	}
	return payload, nil
}

// ClaimScoped is implemented by every payload type that acts on a
// specific claim, letting internal/bundle pick out a claim's events by
// claim ID without a type switch over the payload types.
type ClaimScoped interface {
	ClaimIdentifier() uuid.UUID
}
