// Package batch stages per-file digests for joint submission to a
// calendar. Many files timestamped in the same window are combined under
// one Merkle tree (internal/merkle) so a single calendar round trip proves
// all of them, each file keeping its own path from leaf to the submitted
// tip.
//
// Staging here is append-only and in-memory, patterned after the
// mutex-guarded accounting internal/mmr uses for its own append-only
// structure, but this is not a Merkle Mountain Range: a batch has a single
// flush point rather than a continuously-extending peak set.
package batch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"chronoproof/internal/merkle"
	"chronoproof/internal/ops"
	"chronoproof/internal/proof"
)

// NonceSize is the width of the per-file nonce prepended before hashing,
// so two submitters timestamping byte-identical files don't collide on a
// shared calendar and leak that fact to each other.
const NonceSize = 16

// ErrAlreadyFlushed indicates an attempt to stage into or re-flush a batch
// that has already been flushed.
var ErrAlreadyFlushed = errors.New("batch: already flushed")

// ErrEmptyBatch indicates Flush was called with nothing staged.
var ErrEmptyBatch = errors.New("batch: nothing staged")

// entry is one staged file: its own digest, the nonce applied before
// hashing, and the tree that will grow a proof path to the batch tip.
type entry struct {
	fileDigest []byte
	nonce      [NonceSize]byte
	leaf       *proof.Timestamp
}

// Batch accumulates digests from Stage calls until Flush combines them
// under one Merkle tree. Safe for concurrent use.
type Batch struct {
	mu      sync.Mutex
	entries []*entry
	flushed bool
}

// New returns an empty, unflushed Batch.
func New() *Batch {
	return &Batch{}
}

// Stage nonces and hashes fileDigest, adds the result as one leaf of the
// eventual batch tree, and returns a handle usable after Flush to read the
// staged file's own proof.Timestamp (whose root equals the leaf's
// sha256(nonce || fileDigest)).
func (b *Batch) Stage(fileDigest []byte) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.flushed {
		return nil, ErrAlreadyFlushed
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("batch: generating nonce: %w", err)
	}

	nonced := append(append([]byte(nil), nonce[:]...), fileDigest...)
	leaf := proof.New(nonced)
	hashed := leaf.Add(ops.SHA256())

	e := &entry{fileDigest: append([]byte(nil), fileDigest...), nonce: nonce}
	e.leaf = hashed
	b.entries = append(b.entries, e)

	return &Handle{batch: b, e: e}, nil
}

// Len returns the number of files staged so far.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Flush builds the Merkle tree over every staged leaf (in staging order)
// and returns the combined tip, growing every Handle's proof tree with its
// path to that tip. The batch cannot be staged into or flushed again.
func (b *Batch) Flush() (*proof.Timestamp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.flushed {
		return nil, ErrAlreadyFlushed
	}
	if len(b.entries) == 0 {
		return nil, ErrEmptyBatch
	}

	leaves := make([]*proof.Timestamp, len(b.entries))
	for i, e := range b.entries {
		leaves[i] = e.leaf
	}

	tip, err := merkle.MakeMerkleTree(leaves, nil)
	if err != nil {
		return nil, err
	}

	b.flushed = true
	return tip, nil
}

// Handle identifies one staged file within a Batch.
type Handle struct {
	batch *Batch
	e     *entry
}

// Nonce returns the random bytes prepended to the file digest before
// hashing.
func (h *Handle) Nonce() [NonceSize]byte { return h.e.nonce }

// FileDigest returns the original, un-nonced digest passed to Stage.
func (h *Handle) FileDigest() []byte { return h.e.fileDigest }

// Proof returns the handle's proof tree, rooted at sha256(nonce ||
// fileDigest). Before Flush this carries no attestations; after Flush it
// carries whatever ops/attestations Flush's Merkle reduction attached en
// route to the batch tip.
func (h *Handle) Proof() *proof.Timestamp { return h.e.leaf }
