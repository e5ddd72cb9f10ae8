// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockflow implements the BlockFlow core: the G² grid of
// per-(from,to) chains, tip bookkeeping, weight accounting, and best-deps
// selection (§3, §4.1).
package blockflow

import (
	"bytes"
	"io"

	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/primitives/serialize"
	"github.com/pkg/errors"
)

// Timestamp is a wire-level (seconds, nanoseconds) pair, serialized as a
// fixed 16 bytes per §6.
type Timestamp struct {
	Seconds int64
	Nanos   int64
}

// BlockDeps are the parent hashes a new block references: one per other
// chain in canonical row-major order, plus the intra-chain parent (§3,
// DESIGN.md "full-mesh deps"). Index NumDepsPerBlock()-1 (the last entry)
// is always the intra-chain parent by convention used throughout this
// package.
type BlockDeps []primitives.Hash

// BlockHeader is the fixed-size, hashable portion of a Block (§3).
type BlockHeader struct {
	BlockDeps    BlockDeps
	TxMerkleRoot primitives.Hash
	Timestamp    Timestamp
	Target       primitives.Hash // 32-byte big-endian difficulty target
	Nonce        [32]byte
}

// Hash returns the block identity: the header's own hash (§3).
func (h *BlockHeader) Hash() primitives.Hash {
	buf := &bytes.Buffer{}
	_ = h.Encode(buf)
	return primitives.Keccak256(buf.Bytes())
}

// Encode writes header to w as:
// txMerkleRoot(32) || timestamp(16) || target(32) || nonce(32) || blockDeps.
func (h *BlockHeader) Encode(w io.Writer) error {
	if err := serialize.WriteFixed(w, h.TxMerkleRoot[:]); err != nil {
		return err
	}
	if err := serialize.WriteUint64(w, uint64(h.Timestamp.Seconds)); err != nil {
		return err
	}
	if err := serialize.WriteUint64(w, uint64(h.Timestamp.Nanos)); err != nil {
		return err
	}
	if err := serialize.WriteFixed(w, h.Target[:]); err != nil {
		return err
	}
	if err := serialize.WriteFixed(w, h.Nonce[:]); err != nil {
		return err
	}
	for _, dep := range h.BlockDeps {
		if err := serialize.WriteFixed(w, dep[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlockHeader reads a BlockHeader written by Encode. numDeps must
// equal the deployment's NumDepsPerBlock (G²).
func DecodeBlockHeader(r io.Reader, numDeps int) (*BlockHeader, error) {
	h := &BlockHeader{}
	if err := serialize.ReadFixed(r, h.TxMerkleRoot[:]); err != nil {
		return nil, errors.Wrap(err, "decoding txMerkleRoot")
	}
	seconds, err := serialize.ReadUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding timestamp seconds")
	}
	nanos, err := serialize.ReadUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding timestamp nanos")
	}
	h.Timestamp = Timestamp{Seconds: int64(seconds), Nanos: int64(nanos)}
	if err := serialize.ReadFixed(r, h.Target[:]); err != nil {
		return nil, errors.Wrap(err, "decoding target")
	}
	if err := serialize.ReadFixed(r, h.Nonce[:]); err != nil {
		return nil, errors.Wrap(err, "decoding nonce")
	}
	h.BlockDeps = make(BlockDeps, numDeps)
	for i := 0; i < numDeps; i++ {
		if err := serialize.ReadFixed(r, h.BlockDeps[i][:]); err != nil {
			return nil, errors.Wrapf(err, "decoding blockDeps[%d]", i)
		}
	}
	return h, nil
}

// IntraChainParent is the last entry of BlockDeps by this package's
// convention (§3).
func (d BlockDeps) IntraChainParent() primitives.Hash {
	return d[len(d)-1]
}

// TxOutputPoint references one output of a prior transaction. The short
// key occupies the first 4 bytes on the wire to enable trie prefix lookups
// (§6).
type TxOutputPoint struct {
	ShortKey    [4]byte
	TxHash      primitives.Hash
	OutputIndex uint32
}

// Encode writes (shortKey:4B, txHash:32B, outputIndex:4B) per §6.
func (p *TxOutputPoint) Encode(w io.Writer) error {
	if err := serialize.WriteFixed(w, p.ShortKey[:]); err != nil {
		return err
	}
	if err := serialize.WriteFixed(w, p.TxHash[:]); err != nil {
		return err
	}
	return serialize.WriteUint32(w, p.OutputIndex)
}

// DecodeTxOutputPoint reads a TxOutputPoint written by Encode.
func DecodeTxOutputPoint(r io.Reader) (TxOutputPoint, error) {
	var p TxOutputPoint
	if err := serialize.ReadFixed(r, p.ShortKey[:]); err != nil {
		return p, err
	}
	if err := serialize.ReadFixed(r, p.TxHash[:]); err != nil {
		return p, err
	}
	idx, err := serialize.ReadUint32(r)
	if err != nil {
		return p, err
	}
	p.OutputIndex = idx
	return p, nil
}

// TxOutput is a spendable output: an amount locked to a script.
type TxOutput struct {
	Amount       uint64
	LockupScript []byte
}

// Encode writes amount(8B) || lockupScript(varint-prefixed).
func (o *TxOutput) Encode(w io.Writer) error {
	if err := serialize.WriteUint64(w, o.Amount); err != nil {
		return err
	}
	return serialize.WriteVarBytes(w, o.LockupScript)
}

// DecodeTxOutput reads a TxOutput written by Encode.
func DecodeTxOutput(r io.Reader) (TxOutput, error) {
	var o TxOutput
	amount, err := serialize.ReadUint64(r)
	if err != nil {
		return o, err
	}
	o.Amount = amount
	script, err := serialize.ReadVarBytes(r)
	if err != nil {
		return o, err
	}
	o.LockupScript = script
	return o, nil
}

// UnsignedTx is the signable portion of a Transaction (§3).
type UnsignedTx struct {
	Inputs  []TxOutputPoint
	Outputs []TxOutput
}

// Hash returns the transaction identity: the hash of the unsigned payload.
func (u *UnsignedTx) Hash() primitives.Hash {
	buf := &bytes.Buffer{}
	_ = u.Encode(buf)
	return primitives.Keccak256(buf.Bytes())
}

// Encode writes inputCount||inputs||outputCount||outputs.
func (u *UnsignedTx) Encode(w io.Writer) error {
	if err := serialize.WriteVarInt(w, uint64(len(u.Inputs))); err != nil {
		return err
	}
	for i := range u.Inputs {
		if err := u.Inputs[i].Encode(w); err != nil {
			return err
		}
	}
	if err := serialize.WriteVarInt(w, uint64(len(u.Outputs))); err != nil {
		return err
	}
	for i := range u.Outputs {
		if err := u.Outputs[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeUnsignedTx reads an UnsignedTx written by Encode.
func DecodeUnsignedTx(r io.Reader) (*UnsignedTx, error) {
	u := &UnsignedTx{}
	inCount, err := serialize.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	u.Inputs = make([]TxOutputPoint, inCount)
	for i := range u.Inputs {
		in, err := DecodeTxOutputPoint(r)
		if err != nil {
			return nil, err
		}
		u.Inputs[i] = in
	}
	outCount, err := serialize.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	u.Outputs = make([]TxOutput, outCount)
	for i := range u.Outputs {
		out, err := DecodeTxOutput(r)
		if err != nil {
			return nil, err
		}
		u.Outputs[i] = out
	}
	return u, nil
}

// Transaction is a signed transaction. A coinbase transaction has no
// inputs (§3).
type Transaction struct {
	Unsigned   UnsignedTx
	Signatures []primitives.Signature
}

// Hash returns the transaction identity (hash of the unsigned payload).
func (tx *Transaction) Hash() primitives.Hash {
	return tx.Unsigned.Hash()
}

// IsCoinbase reports whether tx has no inputs.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Unsigned.Inputs) == 0
}

// Encode writes unsigned || signatureCount || signatures.
func (tx *Transaction) Encode(w io.Writer) error {
	if err := tx.Unsigned.Encode(w); err != nil {
		return err
	}
	if err := serialize.WriteVarInt(w, uint64(len(tx.Signatures))); err != nil {
		return err
	}
	for _, sig := range tx.Signatures {
		if err := serialize.WriteFixed(w, sig[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTransaction reads a Transaction written by Encode.
func DecodeTransaction(r io.Reader) (*Transaction, error) {
	unsigned, err := DecodeUnsignedTx(r)
	if err != nil {
		return nil, err
	}
	sigCount, err := serialize.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	sigs := make([]primitives.Signature, sigCount)
	for i := range sigs {
		if err := serialize.ReadFixed(r, sigs[i][:]); err != nil {
			return nil, err
		}
	}
	return &Transaction{Unsigned: *unsigned, Signatures: sigs}, nil
}

// Block is a header paired with its transactions (§3). Block hash = header
// hash.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Hash returns the block identity (the header hash).
func (b *Block) Hash() primitives.Hash {
	return b.Header.Hash()
}

// Encode writes header || txCount || tx0...txn-1 (§6).
func (b *Block) Encode(w io.Writer) error {
	if err := b.Header.Encode(w); err != nil {
		return err
	}
	if err := serialize.WriteVarInt(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := tx.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlock reads a Block written by Encode.
func DecodeBlock(r io.Reader, numDeps int) (*Block, error) {
	header, err := DecodeBlockHeader(r, numDeps)
	if err != nil {
		return nil, err
	}
	txCount, err := serialize.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, txCount)
	for i := range txs {
		tx, err := DecodeTransaction(r)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &Block{Header: *header, Transactions: txs}, nil
}

// TxMerkleRoot computes the Merkle root over txs, using each transaction's
// hash as a leaf. An empty tx list roots to the zero hash.
func TxMerkleRoot(txs []*Transaction) primitives.Hash {
	if len(txs) == 0 {
		return primitives.ZeroHash
	}
	level := make([]primitives.Hash, len(txs))
	for i, tx := range txs {
		level[i] = tx.Hash()
	}
	for len(level) > 1 {
		next := make([]primitives.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, primitives.Keccak256(level[i][:], level[i][:]))
			} else {
				next = append(next, primitives.Keccak256(level[i][:], level[i+1][:]))
			}
		}
		level = next
	}
	return level[0]
}
