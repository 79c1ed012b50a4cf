package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/tedy97123/accountabiltyme/internal/anchor"
	"github.com/tedy97123/accountabiltyme/internal/canon"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
	"github.com/tedy97123/accountabiltyme/internal/signer"
)

// Result is a standalone verifier's final verdict.
type Result string

const (
	ResultVerified      Result = "VERIFIED"
	ResultTampered      Result = "TAMPERED"
	ResultIncomplete    Result = "INCOMPLETE"
	ResultInvalidFormat Result = "INVALID_FORMAT"
)

// ExitCode maps a Result to the contractual CLI exit code of spec.md §6.
func ExitCode(r Result) int {
	switch r {
	case ResultVerified:
		return 0
	case ResultTampered:
		return 1
	case ResultIncomplete:
		return 2
	default:
		return 3
	}
}

// Report is the full output of a verification run: the verdict plus
// every check that passed, failed, or only warranted a warning.
type Report struct {
	Result   Result   `json:"result"`
	Passed   []string `json:"passed"`
	Failed   []string `json:"failed"`
	Warnings []string `json:"warnings"`
}

func (r *Report) pass(msg string) { r.Passed = append(r.Passed, msg) }
func (r *Report) fail(msg string) { r.Failed = append(r.Failed, msg) }
func (r *Report) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// Verify reads the bundle file at path and independently checks it. It
// never consults a live ledger — everything needed to verify is inside
// the bundle itself.
func Verify(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Report{Result: ResultInvalidFormat, Failed: []string{fmt.Sprintf("cannot read file: %v", err)}}, nil
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return &Report{Result: ResultInvalidFormat, Failed: []string{fmt.Sprintf("malformed JSON: %v", err)}}, nil
	}

	report := &Report{}

	if !structurallyComplete(&b, report) {
		report.Result = ResultInvalidFormat
		return report, nil
	}

	if b.Editors == nil {
		report.fail("editors section is missing")
		report.Result = ResultIncomplete
		return report, nil
	}

	incomplete := false
	for _, ev := range b.Events {
		if _, ok := b.Editors[ev.CreatedBy.String()]; !ok {
			report.fail(fmt.Sprintf("event %s: created_by %s not present in editors section", ev.EventID, ev.CreatedBy))
			incomplete = true
		}
	}
	if incomplete {
		report.Result = ResultIncomplete
		return report, nil
	}
	report.pass("every event's created_by resolves to an editor in the bundle")

	tampered := false

	for _, ev := range b.Events {
		if !verifyEventHash(ev, report) {
			tampered = true
		}
	}

	if !verifyChainLinkage(b.Events, report) {
		tampered = true
	}

	for _, ev := range b.Events {
		editor := b.Editors[ev.CreatedBy.String()]
		if !signer.VerifyEvent(ev.EventHash, ev.EditorSignature, editor.PublicKey) {
			report.fail(fmt.Sprintf("event %s: editor_signature does not verify under editor %s's public key", ev.EventID, ev.CreatedBy))
			tampered = true
		}
	}
	if !tampered {
		report.pass("every editor_signature verifies as Ed25519 over its event_hash")
	}

	for _, ev := range b.Events {
		if len(ev.MerkleProof) == 0 {
			continue
		}
		var proof anchor.Proof
		if err := json.Unmarshal(ev.MerkleProof, &proof); err != nil {
			report.fail(fmt.Sprintf("event %s: merkle_proof is not a valid proof object: %v", ev.EventID, err))
			tampered = true
			continue
		}
		if !anchor.VerifyProof(proof) {
			report.fail(fmt.Sprintf("event %s: merkle_proof does not verify against its own merkle_root", ev.EventID))
			tampered = true
			continue
		}
		report.pass(fmt.Sprintf("event %s: merkle_proof verifies", ev.EventID))
	}

	if tampered {
		report.Result = ResultTampered
		return report, nil
	}

	report.Result = ResultVerified
	return report, nil
}

func structurallyComplete(b *Bundle, report *Report) bool {
	ok := true
	if b.Meta.ClaimID == uuid.Nil {
		report.fail("_meta.claim_id is missing or zero")
		ok = false
	}
	if b.Claim.ClaimID != b.Meta.ClaimID {
		report.fail("claim.claim_id does not match _meta.claim_id")
		ok = false
	}
	if len(b.Events) == 0 {
		report.fail("events section is empty")
		ok = false
	}
	if !ok {
		return false
	}
	report.pass("bundle has _meta and claim sections with matching claim ids and a nonempty events list")
	return true
}

// verifyEventHash recomputes ev.EventHash from its own payload and
// previous_event_hash and compares case-insensitively to the stored
// value.
func verifyEventHash(ev Event, report *Report) bool {
	payload, err := ledger.DecodePayload(ev.EventType, ev.Payload)
	if err != nil {
		report.fail(fmt.Sprintf("event %s: cannot decode payload: %v", ev.EventID, err))
		return false
	}
	value, err := payload.Canon()
	if err != nil {
		report.fail(fmt.Sprintf("event %s: cannot canonicalize payload: %v", ev.EventID, err))
		return false
	}
	recomputed, err := canon.HashEvent(value, ev.PreviousEventHash)
	if err != nil {
		report.fail(fmt.Sprintf("event %s: cannot hash payload: %v", ev.EventID, err))
		return false
	}
	if !strings.EqualFold(recomputed, ev.EventHash) {
		report.fail(fmt.Sprintf("event %s: recomputed event_hash %q does not match stored %q", ev.EventID, recomputed, ev.EventHash))
		return false
	}
	return true
}

// verifyChainLinkage checks that previous_event_hash chains correctly
// and sequence numbers are strictly increasing. A gap in sequence
// numbers is only a warning (the bundle may be a deliberately filtered
// view of a larger chain), not a failure.
func verifyChainLinkage(events []Event, report *Report) bool {
	ok := true
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.SequenceNumber <= prev.SequenceNumber {
			report.fail(fmt.Sprintf("event %s: sequence_number %d is not strictly greater than the prior event's %d", cur.EventID, cur.SequenceNumber, prev.SequenceNumber))
			ok = false
			continue
		}
		if cur.SequenceNumber != prev.SequenceNumber+1 {
			report.warn(fmt.Sprintf("event %s: sequence_number jumps from %d to %d; bundle appears to be a filtered view", cur.EventID, prev.SequenceNumber, cur.SequenceNumber))
		}
		if cur.PreviousEventHash == nil || !strings.EqualFold(*cur.PreviousEventHash, prev.EventHash) {
			report.fail(fmt.Sprintf("event %s: previous_event_hash does not match the prior event's event_hash", cur.EventID))
			ok = false
		}
	}
	if ok {
		report.pass("chain linkage (previous_event_hash, sequence_number) is intact across all events")
	}
	return ok
}
