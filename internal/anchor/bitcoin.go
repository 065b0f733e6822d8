// Package anchor builds and verifies the proof edge between a batched
// commitment and a Bitcoin (or Ethereum) block: given a transaction that
// embeds the commitment, it derives the append/prepend/hash path from the
// commitment to the transaction id, then from the transaction id up
// through the block's own merkle tree. It also adapts both chains' block
// header shapes to the narrow oracle interfaces internal/attestation
// verifies against.
package anchor

import (
	"bytes"
	"errors"
	"fmt"

	"chronoproof/internal/attestation"
	"chronoproof/internal/merkle"
	"chronoproof/internal/ops"
	"chronoproof/internal/proof"
)

// DefaultMaxTxSize bounds the serialized transaction size considered a
// valid carrier for the commitment, per spec.md §4.G.
const DefaultMaxTxSize = 1000

// Errors for the anchoring error taxonomy.
var (
	ErrDigestNotFound = errors.New("anchor: digest not found in any transaction under max_tx_size")
	ErrTxidMismatch   = errors.New("anchor: computed txid does not match transaction hash")
)

// Tx is the minimal transaction shape the anchoring algorithm needs: its
// serialized bytes and the txid those bytes hash to.
type Tx interface {
	Serialize() []byte
	GetHash() [32]byte
}

// Block is the minimal block shape the anchoring algorithm needs: its
// ordered list of transactions.
type Block struct {
	Vtx []Tx
}

// FindCarrier scans block.Vtx for the smallest (by serialized length,
// first-encountered tie-break) transaction whose serialized bytes contain
// digest as a contiguous substring and fit within maxTxSize. Returns the
// carrier's index, its serialized bytes, and the digest's offset within
// them.
func FindCarrier(block Block, digest []byte, maxTxSize int) (index int, serialized []byte, offset int, err error) {
	if maxTxSize <= 0 {
		maxTxSize = DefaultMaxTxSize
	}

	bestIndex := -1
	var bestSerialized []byte
	bestOffset := -1

	for i, tx := range block.Vtx {
		ser := tx.Serialize()
		if len(ser) > maxTxSize {
			continue
		}
		idx := bytes.Index(ser, digest)
		if idx < 0 {
			continue
		}
		if bestIndex == -1 || len(ser) < len(bestSerialized) {
			bestIndex = i
			bestSerialized = ser
			bestOffset = idx
		}
	}

	if bestIndex == -1 {
		return 0, nil, 0, ErrDigestNotFound
	}
	return bestIndex, bestSerialized, bestOffset, nil
}

// Anchor runs the algorithm of spec.md §4.G: find the carrying
// transaction, grow a Timestamp rooted at digest through prepend/append/
// double-sha256 to the carrier's txid, substitute that proof into the
// block's own merkle tree, and attach a BitcoinBlockHeader attestation at
// blockheight on the tip. Returns the root Timestamp over digest.
func Anchor(block Block, digest []byte, blockheight uint64, maxTxSize int) (*proof.Timestamp, error) {
	index, serialized, offset, err := FindCarrier(block, digest, maxTxSize)
	if err != nil {
		return nil, err
	}

	prefix := append([]byte(nil), serialized[:offset]...)
	suffix := append([]byte(nil), serialized[offset+len(digest):]...)

	root := proof.New(digest)
	withPrefix := root.Add(ops.Prepend(prefix))
	withSuffix := withPrefix.Add(ops.Append(suffix))
	firstHash := withSuffix.Add(ops.SHA256())
	txidProof := firstHash.Add(ops.SHA256())

	wantTxid := block.Vtx[index].GetHash()
	var gotTxid [32]byte
	copy(gotTxid[:], txidProof.Msg())
	if gotTxid != wantTxid {
		return nil, fmt.Errorf("%w: tx %d", ErrTxidMismatch, index)
	}

	leaves := make([][32]byte, len(block.Vtx))
	for i, tx := range block.Vtx {
		leaves[i] = tx.GetHash()
	}

	tip, _, err := merkle.MakeBitcoinBlockMerkleTreeWithProof(leaves, index, txidProof)
	if err != nil {
		return nil, err
	}
	tip.AddAttestation(attestation.BitcoinBlockHeader{Height: blockheight})

	return root, nil
}
