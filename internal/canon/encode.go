package canon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalBytes produces the canonical byte encoding of a top-level
// payload. payload must be a Map; anything else is a serialization
// error. The reserved "__canon_v" key, set to Version, is inserted
// before encoding so it sorts first (underscore precedes the lowercase
// letters used by every other key in this system).
func CanonicalBytes(payload Value) ([]byte, error) {
	if payload.kind != KindMap {
		return nil, fmt.Errorf("%w: top-level canonicalization requires an object, got kind %d", ErrSerialization, payload.kind)
	}

	withVersion := make(map[string]Value, len(payload.obj)+1)
	for k, v := range payload.obj {
		withVersion[k] = v
	}
	withVersion["__canon_v"] = Int(Version)

	var buf strings.Builder
	if err := encodeObject(&buf, withVersion); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func encodeValue(buf *strings.Builder, v Value) error {
	switch v.kind {
	case KindNull:
		// Callers must never reach here for object fields (omitted
		// earlier); a bare null cannot appear as a list element under
		// this system's payload shapes, but encode it defensively.
		buf.WriteString("null")
		return nil
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
		return nil
	case KindDecimal:
		encodeString(buf, v.s)
		return nil
	case KindString:
		encodeString(buf, v.s)
		return nil
	case KindUUID:
		encodeString(buf, v.s)
		return nil
	case KindDate:
		encodeString(buf, v.s)
		return nil
	case KindInstant:
		encodeString(buf, v.t)
		return nil
	case KindEnum:
		encodeString(buf, v.s)
		return nil
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMap:
		return encodeObject(buf, v.obj)
	default:
		return fmt.Errorf("%w: unrecognized value kind %d", ErrSerialization, v.kind)
	}
}

func encodeObject(buf *strings.Builder, obj map[string]Value) error {
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if v.kind == KindNull {
			continue // nulls are omitted, not serialized
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeString writes s as a JSON string literal with ensure_ascii
// semantics: every non-ASCII rune and every control character below
// 0x20 is escaped as \uXXXX
// (astral-plane runes as a UTF-16 surrogate pair), and the standard JSON
// control-character escapes are used where shorter.
func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				fmt.Fprintf(buf, `\u%04x`, r)
			case r < 0x80:
				buf.WriteByte(byte(r))
			case r <= 0xFFFF:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				// Astral plane: encode as a UTF-16 surrogate pair.
				r -= 0x10000
				hi := 0xD800 + (r >> 10)
				lo := 0xDC00 + (r & 0x3FF)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			}
		}
	}
	buf.WriteByte('"')
}
