package canon_test

import (
	"testing"

	"github.com/tedy97123/accountabiltyme/internal/canon"
)

func TestCanonicalBytes_Deterministic(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{
		"b": canon.Int(2),
		"a": canon.Int(1),
	})

	first, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := canon.CanonicalBytes(payload)
		if err != nil {
			t.Fatalf("CanonicalBytes (iteration %d): %v", i, err)
		}
		if string(again) != string(first) {
			t.Fatalf("canonical bytes changed across calls: %s vs %s", first, again)
		}
	}
}

func TestCanonicalBytes_KeyOrderIrrelevant(t *testing.T) {
	a := canon.Map(map[string]canon.Value{"z": canon.Int(1), "a": canon.Int(2), "m": canon.Int(3)})
	b := canon.Map(map[string]canon.Value{"m": canon.Int(3), "z": canon.Int(1), "a": canon.Int(2)})

	gotA, err := canon.CanonicalBytes(a)
	if err != nil {
		t.Fatalf("CanonicalBytes(a): %v", err)
	}
	gotB, err := canon.CanonicalBytes(b)
	if err != nil {
		t.Fatalf("CanonicalBytes(b): %v", err)
	}
	if string(gotA) != string(gotB) {
		t.Fatalf("key insertion order affected output: %s vs %s", gotA, gotB)
	}
}

func TestCanonicalBytes_NullFieldOmitted(t *testing.T) {
	withNull := canon.Map(map[string]canon.Value{"a": canon.Int(1), "b": canon.Null()})
	without := canon.Map(map[string]canon.Value{"a": canon.Int(1)})

	gotWith, err := canon.CanonicalBytes(withNull)
	if err != nil {
		t.Fatalf("CanonicalBytes(withNull): %v", err)
	}
	gotWithout, err := canon.CanonicalBytes(without)
	if err != nil {
		t.Fatalf("CanonicalBytes(without): %v", err)
	}
	if string(gotWith) != string(gotWithout) {
		t.Fatalf("dropping null field changed bytes: %s vs %s", gotWith, gotWithout)
	}
}

func TestCanonicalBytes_EmptyValuesPreserved(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{
		"s": canon.Str(""),
		"l": canon.List(),
		"m": canon.Map(map[string]canon.Value{}),
	})
	got, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	const want = `{"__canon_v":1,"l":[],"m":{},"s":""}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCanonicalBytes_TopLevelMustBeObject(t *testing.T) {
	if _, err := canon.CanonicalBytes(canon.Int(1)); err == nil {
		t.Fatal("expected error for non-object top-level value")
	}
	if _, err := canon.CanonicalBytes(canon.List(canon.Int(1))); err == nil {
		t.Fatal("expected error for list top-level value")
	}
}

func TestCanonicalBytes_NonASCIIEscaped(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"s": canon.Str("café")})
	got, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	const want = `{"__canon_v":1,"s":"caf\u00e9"}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCanonicalBytes_AstralPlaneSurrogatePair(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"s": canon.Str("\U0001F600")})
	got, err := canon.CanonicalBytes(payload)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	const want = `{"__canon_v":1,"s":"\ud83d\ude00"}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestDecimal_TrailingZeroDistinct(t *testing.T) {
	d1, err := canon.Decimal("0.80")
	if err != nil {
		t.Fatalf("Decimal(0.80): %v", err)
	}
	d2, err := canon.Decimal("0.8")
	if err != nil {
		t.Fatalf("Decimal(0.8): %v", err)
	}
	b1, _ := canon.CanonicalBytes(canon.Map(map[string]canon.Value{"v": d1}))
	b2, _ := canon.CanonicalBytes(canon.Map(map[string]canon.Value{"v": d2}))
	if string(b1) == string(b2) {
		t.Fatal("0.80 and 0.8 canonicalized identically")
	}
}

func TestDecimal_RejectsNonDecimal(t *testing.T) {
	if _, err := canon.Decimal("abc"); err == nil {
		t.Fatal("expected error for non-decimal literal")
	}
	if _, err := canon.Decimal("1.2.3"); err == nil {
		t.Fatal("expected error for malformed decimal literal")
	}
}

func TestHashEvent_GenesisVsChained(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"a": canon.Int(1)})

	genesis, err := canon.HashEvent(payload, nil)
	if err != nil {
		t.Fatalf("HashEvent(genesis): %v", err)
	}

	prev := genesis
	chained, err := canon.HashEvent(payload, &prev)
	if err != nil {
		t.Fatalf("HashEvent(chained): %v", err)
	}
	if chained == genesis {
		t.Fatal("chained hash must differ from genesis hash for the same payload")
	}
}

func TestHashEvent_RejectsMalformedPreviousHash(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"a": canon.Int(1)})
	bad := "not-a-hash"
	if _, err := canon.HashEvent(payload, &bad); err == nil {
		t.Fatal("expected error for malformed previous_hash")
	}
}

func TestHashEvent_PreviousHashCaseInsensitive(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"a": canon.Int(1)})
	lower := "ab" + stringsRepeat("0", 62)
	upper := "AB" + stringsRepeat("0", 62)

	h1, err := canon.HashEvent(payload, &lower)
	if err != nil {
		t.Fatalf("HashEvent(lower): %v", err)
	}
	h2, err := canon.HashEvent(payload, &upper)
	if err != nil {
		t.Fatalf("HashEvent(upper): %v", err)
	}
	if h1 != h2 {
		t.Fatal("previous_hash case should not affect the resulting hash")
	}
}

func TestVerifyChain_TamperDetection(t *testing.T) {
	payload := canon.Map(map[string]canon.Value{"a": canon.Int(1)})
	hash, err := canon.HashEvent(payload, nil)
	if err != nil {
		t.Fatalf("HashEvent: %v", err)
	}
	if !canon.VerifyChain(payload, hash, nil) {
		t.Fatal("VerifyChain should succeed for an untampered payload")
	}

	tampered := canon.Map(map[string]canon.Value{"a": canon.Int(2)})
	if canon.VerifyChain(tampered, hash, nil) {
		t.Fatal("VerifyChain should fail once the payload is tampered with")
	}
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
