package primitives

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// PublicKeySize and PrivateKeySize mirror the ed25519 key sizes used for
// per-group addresses and transaction/script signatures.
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// PublicKey identifies an address. Address-to-group mapping
// (PublicKeyToGroupIndex) is derived from it deterministically.
type PublicKey [PublicKeySize]byte

// PrivateKey signs transactions and scripts on behalf of a PublicKey.
type PrivateKey [PrivateKeySize]byte

// Signature is a detached ed25519 signature over a transaction or script hash.
type Signature [SignatureSize]byte

// GenerateKeyPair creates a new random key pair using the supplied entropy
// source (see the rng package's Rng interface).
func GenerateKeyPair(randSource interface {
	Read(p []byte) (int, error)
}) (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(randSource)
	if err != nil {
		return PublicKey{}, PrivateKey{}, errors.Wrap(err, "generating key pair")
	}
	var pk PublicKey
	var sk PrivateKey
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// Sign produces a Signature over msg using priv.
func Sign(priv PrivateKey, msg []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig is a valid signature over msg by pub. This
// backs the VM's SignatureVerify opcode (§4.6).
func Verify(pub PublicKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}

// PublicKeyToGroupIndex derives the group a public key belongs to, modulo
// the deployment's group count G. Per-group miner payout addresses are
// constructed so that this function returns the expected index for each
// group's address (§4.4 construction-time invariant).
func PublicKeyToGroupIndex(pub PublicKey, groupCount int) int {
	h := Keccak256(pub[:])
	// Big-endian interpretation of the last byte keeps this stable
	// regardless of future hash-output-size changes.
	return int(h[HashSize-1]) % groupCount
}
