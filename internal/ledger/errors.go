package ledger

import "errors"

// Sentinel error kinds. Every error LedgerService returns wraps one of
// these via fmt.Errorf("%w: ...", sentinel, detail), so callers use
// errors.Is rather than string matching.
var (
	// ErrValidation covers claim/evidence state-machine and payload
	// validation failures: wrong transition, duplicate claim, missing
	// evidence reference, and similar.
	ErrValidation = errors.New("ledger: validation error")

	// ErrEditor covers editorial-identity failures: unregistered or
	// deactivated editor, wrong role, duplicate public key, and a failed
	// key-binding check.
	ErrEditor = errors.New("ledger: editor error")

	// ErrChain covers chain-integrity failures: sequence mismatch,
	// broken previous_event_hash linkage, or a recomputed hash that does
	// not match a stored one.
	ErrChain = errors.New("ledger: chain error")
)
