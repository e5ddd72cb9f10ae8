package primitives

import "testing"

func TestHashFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := HashFromBytes(make([]byte, HashSize-1)); err == nil {
		t.Fatalf("expected an error for a short byte slice")
	}
	b := make([]byte, HashSize)
	b[0] = 0xab
	h, err := HashFromBytes(b)
	if err != nil {
		t.Fatalf("HashFromBytes: %v", err)
	}
	if h[0] != 0xab {
		t.Fatalf("expected first byte 0xab, got %#x", h[0])
	}
}

func TestHashLessIsLexicographic(t *testing.T) {
	a := Hash{0x01}
	b := Hash{0x02}
	if !a.Less(b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if b.Less(a) {
		t.Fatalf("expected %s to not be < %s", b, a)
	}
	if a.Less(a) {
		t.Fatalf("a hash must not be Less than itself")
	}
}

func TestHashBytesIsACopy(t *testing.T) {
	h := Hash{0x01, 0x02}
	b := h.Bytes()
	b[0] = 0xff
	if h[0] != 0x01 {
		t.Fatalf("mutating the returned slice must not affect the original hash")
	}
}

func TestKeccak256AndBlake2bDiffer(t *testing.T) {
	msg := []byte("blockflow")
	k := Keccak256(msg)
	b := Blake2b(msg)
	if k == b {
		t.Fatalf("Keccak256 and Blake2b must not collide on the same input")
	}
	if Keccak256(msg) != k {
		t.Fatalf("Keccak256 must be deterministic")
	}
}

func TestKeccak256MultiPartMatchesConcatenation(t *testing.T) {
	a := Keccak256([]byte("foo"), []byte("bar"))
	b := Keccak256([]byte("foobar"))
	if a != b {
		t.Fatalf("hashing parts separately must match hashing the concatenation")
	}
}
