package irraw

import (
	"errors"
	"testing"

	"irlearn-go/x/kvstore"
)

func TestEqualReflexive(t *testing.T) {
	s := Signal{0xFFFF, 0, 1200, 3519, 1}
	for _, tol := range []float32{0, 5, 50, 100} {
		if !Equal(s, s, tol) {
			t.Fatalf("Equal(s, s, %v) = false", tol)
		}
	}
	if !Equal(s, s, -10) {
		t.Fatal("negative tolerance must behave like zero")
	}
}

func TestEqualLengthMismatch(t *testing.T) {
	if Equal(Signal{100, 200}, Signal{100, 200, 300}, 100) {
		t.Fatal("length mismatch matched")
	}
	if Equal(Signal{}, Signal{1}, 1000) {
		t.Fatal("empty vs non-empty matched")
	}
}

func TestEqualToleranceScenario(t *testing.T) {
	a := Signal{3519, 1707, 471, 400, 471, 1290, 471, 400}
	b := make(Signal, len(a))
	for i, v := range a {
		b[i] = v + v/10 // +10%
	}
	if !Equal(b, a, 50) {
		t.Fatal("10% drift should pass at 50%")
	}
	if Equal(b, a, 5) {
		t.Fatal("10% drift should fail at 5%")
	}
}

func TestEqualIsRelativeToReference(t *testing.T) {
	a, b := Signal{100}, Signal{150}
	// |100-150| = 50 <= 0.34*150 but > 0.34*100
	if !Equal(a, b, 34) {
		t.Fatal("expected match against 150")
	}
	if Equal(b, a, 34) {
		t.Fatal("expected miss against 100")
	}
}

func TestMatchPicksFirstByName(t *testing.T) {
	refs := map[string]Signal{
		"ir_on":  {1000, 500, 1000},
		"ir_off": {1000, 500, 1000},
		"other":  {10, 10},
	}
	name, ok := Match(Signal{1010, 490, 990}, DefaultTolerance, refs)
	if !ok || name != "ir_off" {
		t.Fatalf("Match = %q, %v", name, ok)
	}
	if _, ok := Match(Signal{1, 2, 3, 4}, DefaultTolerance, refs); ok {
		t.Fatal("unexpected match")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := kvstore.NewMem()
	long := make(Signal, Capacity-1)
	for i := range long {
		long[i] = uint16(i*97 + 1)
	}
	long[10], long[11] = Placeholder, 0
	for _, s := range []Signal{sample, long} {
		if err := Save(st, "ir_on", s); err != nil {
			t.Fatal(err)
		}
		got, err := Load(st, "ir_on")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(s) || !Equal(got, s, 0) {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestBlobIsLittleEndian(t *testing.T) {
	p := Encode(Signal{0x0DBF, 0x06AB})
	want := []byte{0xBF, 0x0D, 0xAB, 0x06}
	for i := range want {
		if p[i] != want[i] {
			t.Fatalf("blob = % x", p)
		}
	}
	if got := Decode(append(p, 0x99)); len(got) != 2 {
		t.Fatalf("odd trailing byte decoded: %v", got)
	}
}

func TestLoadMissingKeyIsAbsent(t *testing.T) {
	st := kvstore.NewMem()
	s, err := Load(st, "missing_key")
	if !errors.Is(err, ErrAbsent) || s != nil {
		t.Fatalf("Load = %v, %v", s, err)
	}
	_, _ = st.Put("empty", nil)
	if _, err := Load(st, "empty"); !errors.Is(err, ErrAbsent) {
		t.Fatalf("empty blob: %v", err)
	}
	if _, err := Load(failStore{}, "x"); !errors.Is(err, errBackend) {
		t.Fatalf("backend error lost: %v", err)
	}
}

func TestSaveShortWrite(t *testing.T) {
	if err := Save(shortStore{cut: 1}, "k", sample); !errors.Is(err, ErrShortWrite) {
		t.Fatalf("err = %v", err)
	}
	err := Save(failStore{}, "k", sample)
	if !errors.Is(err, ErrShortWrite) || !errors.Is(err, errBackend) {
		t.Fatalf("err = %v", err)
	}
}
