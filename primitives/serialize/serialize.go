// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package serialize implements the BlockFlow canonical binary encoding:
// fixed-width integers big-endian, byte slices and sequences length-prefixed
// with a compact varint, and composite values encoded as the concatenation
// of their field encoders in declared order (§6).
package serialize

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// MaxVarBytesAllowed bounds ReadVarBytes against memory-exhaustion from a
// malformed length prefix, the same protection wire.ReadVarBytes applies.
const MaxVarBytesAllowed = 32 * 1024 * 1024

var bigEndian = binary.BigEndian

// WriteUint32 writes v as 4 big-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	bigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads 4 big-endian bytes into a uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return bigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes v as 8 big-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	bigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads 8 big-endian bytes into a uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return bigEndian.Uint64(buf[:]), nil
}

// WriteVarInt serializes val to w as a variable number of bytes, mirroring
// the teacher's compact-varint discriminant scheme (1/3/5/9 bytes).
func WriteVarInt(w io.Writer, val uint64) error {
	switch {
	case val < 0xfd:
		_, err := w.Write([]byte{byte(val)})
		return err
	case val <= math.MaxUint16:
		if _, err := w.Write([]byte{0xfd}); err != nil {
			return err
		}
		var buf [2]byte
		bigEndian.PutUint16(buf[:], uint16(val))
		_, err := w.Write(buf[:])
		return err
	case val <= math.MaxUint32:
		if _, err := w.Write([]byte{0xfe}); err != nil {
			return err
		}
		return WriteUint32(w, uint32(val))
	default:
		if _, err := w.Write([]byte{0xff}); err != nil {
			return err
		}
		return WriteUint64(w, val)
	}
}

// ReadVarInt deserializes a variable length integer previously written by
// WriteVarInt.
func ReadVarInt(r io.Reader) (uint64, error) {
	var discriminant [1]byte
	if _, err := io.ReadFull(r, discriminant[:]); err != nil {
		return 0, err
	}
	switch discriminant[0] {
	case 0xff:
		return ReadUint64(r)
	case 0xfe:
		v, err := ReadUint32(r)
		return uint64(v), err
	case 0xfd:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(bigEndian.Uint16(buf[:])), nil
	default:
		return uint64(discriminant[0]), nil
	}
}

// WriteVarBytes writes b as a varint length prefix followed by its bytes.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadVarBytes reads a length-prefixed byte slice written by WriteVarBytes.
func ReadVarBytes(r io.Reader) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxVarBytesAllowed {
		return nil, errors.Errorf("var bytes length %d exceeds max allowed %d", count, MaxVarBytesAllowed)
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteFixed writes b as-is, with no length prefix. Used for fixed-size
// fields such as hashes, signatures, and the 4-byte TxOutputPoint short key.
func WriteFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// ReadFixed reads exactly len(b) bytes into b.
func ReadFixed(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}
