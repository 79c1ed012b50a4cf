// Package canon implements the ledger's canonical serialization contract:
// a deterministic, versioned byte encoding for event payloads so that
// hashes and signatures remain verifiable indefinitely, on any platform,
// in any language.
//
// This is the load-bearing contract of the whole system. If this package
// changes behavior without a version bump, every previously issued hash
// and signature becomes unverifiable.
//
// The accepted value kinds are a closed set, modeled here as a tagged
// union (Value). Disallowed kinds — binary floats, sets, raw bytes — have
// no constructor, so a caller cannot build a Value that canonicalizes to
// them; they must be rejected or converted (to Decimal, to a base64
// string) before data enters this package.
package canon

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Version is the current canonicalization format version. It is injected
// as the reserved "__canon_v" key of every top-level canonical object.
// Any behavior-changing modification to this package must increment it;
// events hashed under a prior version remain verifiable because their
// canonical bytes began with that version's marker.
const Version = 1

// Kind identifies which of the closed set of canonical value shapes a
// Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindString
	KindUUID
	KindDate
	KindInstant
	KindEnum
	KindList
	KindMap
)

// Value is a canonicalizable value: one member of the closed set of kinds
// §4.1 defines. Zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string // decimal digits, raw string, lowercase uuid, YYYY-MM-DD, or enum value
	t    string // pre-formatted instant (YYYY-MM-DDTHH:MM:SS.ffffffZ)
	list []Value
	obj  map[string]Value
}

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Null is the canonical null value; when it appears as an object field it
// is omitted from the encoded output rather than written as JSON null.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a non-boolean integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

var decimalPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// Decimal wraps an arbitrary-precision decimal, carried as the exact
// digit string the caller authored (so "0.80" and "0.8" remain distinct).
// It returns an error if s is not a valid decimal literal.
func Decimal(s string) (Value, error) {
	if !decimalPattern.MatchString(s) {
		return Value{}, fmt.Errorf("%w: invalid decimal literal %q", ErrSerialization, s)
	}
	return Value{kind: KindDecimal, s: s}, nil
}

// Str wraps a string. Whitespace and casing are preserved verbatim.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// UUID wraps a UUID, canonicalized as its lowercase 36-character form.
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, s: id.String()} }

// Date wraps a calendar date, canonicalized as YYYY-MM-DD. The time
// portion and location of t are ignored.
func Date(t time.Time) Value {
	return Value{kind: KindDate, s: t.Format("2006-01-02")}
}

// Instant wraps a UTC instant, canonicalized as
// YYYY-MM-DDTHH:MM:SS.ffffffZ with exactly six zero-padded fractional
// digits. t is converted to UTC regardless of its original location.
func Instant(t time.Time) Value {
	u := t.UTC()
	return Value{kind: KindInstant, t: fmt.Sprintf("%s.%06dZ", u.Format("2006-01-02T15:04:05"), u.Nanosecond()/1000)}
}

// Enum wraps an enumerated value's string form (never its symbolic name).
func Enum(s string) Value { return Value{kind: KindEnum, s: s} }

// List wraps an ordered sequence; element order is preserved verbatim.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map wraps a mapping. Keys must be strings (enforced by the map's own
// type); nil values are equivalent to Null() fields and are omitted.
func Map(fields map[string]Value) Value { return Value{kind: KindMap, obj: fields} }
