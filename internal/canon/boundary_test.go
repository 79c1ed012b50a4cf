package canon_test

import (
	"testing"
	"time"

	"github.com/tedy97123/accountabiltyme/internal/canon"
)

func TestInstant_ZeroMicrosecond(t *testing.T) {
	dt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := canon.Map(map[string]canon.Value{"t": canon.Instant(dt)})
	got, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	const want = `{"__canon_v":1,"t":"2024-01-01T00:00:00.000000Z"}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestInstant_ForcedToUTC(t *testing.T) {
	loc := time.FixedZone("PDT", -7*3600)
	dt := time.Date(2024, 1, 1, 5, 0, 0, 0, loc) // 12:00:00 UTC
	payload := canon.Map(map[string]canon.Value{"t": canon.Instant(dt)})
	got, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	const want = `{"__canon_v":1,"t":"2024-01-01T12:00:00.000000Z"}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestGenesisEvent_NoPreviousHash(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"a": canon.Int(1)})

	genesisHash, err := canon.HashEvent(payload, nil)
	if err != nil {
		t.Fatalf("HashEvent(genesis): %v", err)
	}
	directHash, err := canon.HashPayload(payload)
	if err != nil {
		t.Fatalf("HashPayload: %v", err)
	}
	if genesisHash != directHash {
		t.Fatal("genesis event hash must equal the plain payload hash (no chain input prefix)")
	}
}

func TestRoundTrip_SameBytesOnReencode(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{
		"nested": canon.Map(map[string]canon.Value{
			"list": canon.List(canon.Str("x"), canon.Int(7)),
		}),
		"flag": canon.Bool(false),
	})

	first, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	parsed, err := canon.FromJSON(first)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	second, err := canon.CanonicalBytes(parsed)
	if err != nil {
		t.Fatalf("CanonicalBytes (second): %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("re-canonicalizing the parsed canonical bytes produced different bytes")
	}
}
