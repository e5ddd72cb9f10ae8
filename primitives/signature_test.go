package primitives

import "testing"

type fixedEntropy struct{}

func (fixedEntropy) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair(fixedEntropy{})
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("a transaction")
	sig := Sign(priv, msg)
	if !Verify(pub, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(pub, []byte("a different transaction"), sig) {
		t.Fatalf("expected signature over a different message to fail")
	}
}

func TestPublicKeyToGroupIndexIsStableAndInRange(t *testing.T) {
	pub, _, err := GenerateKeyPair(fixedEntropy{})
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	const groupCount = 4
	idx := PublicKeyToGroupIndex(pub, groupCount)
	if idx < 0 || idx >= groupCount {
		t.Fatalf("group index %d out of range [0,%d)", idx, groupCount)
	}
	if got := PublicKeyToGroupIndex(pub, groupCount); got != idx {
		t.Fatalf("expected a deterministic group index, got %d then %d", idx, got)
	}
}
