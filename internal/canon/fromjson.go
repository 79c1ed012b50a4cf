package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FromJSON rebuilds a Value from a generic JSON payload (the same shape
// the ledger persists as payload_json, and the same shape a bundle
// carries for each event's "payload" field).
//
// Once a value has passed through canonicalization its distinguishing
// kind (UUID, date, instant, decimal, enum) is no longer recoverable
// from JSON alone: all of them render as plain JSON strings. That loss
// is harmless here, because the encoded bytes for a string and for any
// of those kinds are identical for the same content — re-canonicalizing
// a parsed JSON string as a plain Str reproduces the exact bytes the
// original typed Value would have produced. This is what lets an
// offline verifier, working only from a bundle's JSON, reproduce the
// hashes a process holding the original typed payload committed.
//
// A JSON number is accepted only if it has no fractional or exponent
// part; canonical payloads never contain a bare IEEE-754 float (those
// are always carried as decimal strings), so a fractional number here
// indicates a payload that did not originate from this package.
func FromJSON(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("%w: invalid JSON payload: %v", ErrSerialization, err)
	}
	return fromAny(v)
}

func fromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return Str(x), nil
	case json.Number:
		return numberToValue(x)
	case []any:
		items := make([]Value, 0, len(x))
		for _, elem := range x {
			ev, err := fromAny(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, ev)
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, elem := range x {
			ev, err := fromAny(elem)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Map(fields), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported JSON value type %T", ErrSerialization, v)
	}
}

func numberToValue(n json.Number) (Value, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return Value{}, fmt.Errorf("%w: bare IEEE-754 float %q is not a valid canonical payload value (decimals must be carried as strings)", ErrSerialization, s)
	}
	i, err := n.Int64()
	if err != nil {
		return Value{}, fmt.Errorf("%w: integer %q out of int64 range: %v", ErrSerialization, s, err)
	}
	return Int(i), nil
}
