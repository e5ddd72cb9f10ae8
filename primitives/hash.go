// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package primitives defines the cryptographic hash, key, and signature
// types shared by every BlockFlow subsystem.
package primitives

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashSize is the number of bytes in a Hash.
const HashSize = 32

// Hash is a 32-byte digest. Equality is byte-equality.
type Hash [HashSize]byte

// ZeroHash is the all-zero Hash, used as the genesis parent placeholder.
var ZeroHash Hash

// IsEqual returns whether hash and target are the same.
func (hash Hash) IsEqual(target Hash) bool {
	return hash == target
}

// String returns the hex encoding of hash.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (hash Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, hash[:])
	return b
}

// Less reports whether hash sorts strictly before other in lexicographic
// byte order. Used to break weight ties when selecting best dependencies.
func (hash Hash) Less(other Hash) bool {
	for i := 0; i < HashSize; i++ {
		if hash[i] != other[i] {
			return hash[i] < other[i]
		}
	}
	return false
}

// HashFromBytes builds a Hash from a byte slice of exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errInvalidHashLength(len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Keccak256 hashes b with Keccak-256. Used for block and transaction
// identity, matching the wire-level hash used throughout the sync protocol.
func Keccak256(b ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, part := range b {
		h.Write(part)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2b hashes b with Blake2b-256. Used for world-state trie node
// addressing, where the BLAKE2b tree-hashing properties matter more than
// interoperability with other chains' Keccak-based identities.
func Blake2b(b ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, part := range b {
		h.Write(part)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

type errInvalidHashLength int

func (e errInvalidHashLength) Error() string {
	return fmt.Sprintf("invalid hash length: got %d bytes, want %d", int(e), HashSize)
}
