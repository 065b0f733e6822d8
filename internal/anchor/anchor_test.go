package anchor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"chronoproof/internal/attestation"
)

type fakeTx struct {
	data []byte
}

func (t fakeTx) Serialize() []byte { return t.data }

func (t fakeTx) GetHash() [32]byte {
	first := sha256.Sum256(t.data)
	return sha256.Sum256(first[:])
}

func TestFindCarrierPicksSmallest(t *testing.T) {
	digest := sha256.Sum256([]byte("commitment"))

	small := fakeTx{data: append([]byte("pre-"), append(digest[:], []byte("-post")...)...)}
	large := fakeTx{data: append([]byte("much-longer-prefix-"), append(digest[:], []byte("-and-a-much-longer-suffix-too")...)...)}
	noMatch := fakeTx{data: []byte("irrelevant transaction bytes")}

	block := Block{Vtx: []Tx{large, noMatch, small}}

	index, ser, offset, err := FindCarrier(block, digest[:], DefaultMaxTxSize)
	if err != nil {
		t.Fatal(err)
	}
	if index != 2 {
		t.Fatalf("expected smallest carrier at index 2, got %d", index)
	}
	if !bytes.Equal(ser[offset:offset+len(digest)], digest[:]) {
		t.Fatalf("offset does not point at digest")
	}
}

func TestFindCarrierNotFound(t *testing.T) {
	digest := sha256.Sum256([]byte("commitment"))
	block := Block{Vtx: []Tx{fakeTx{data: []byte("nothing here")}}}
	_, _, _, err := FindCarrier(block, digest[:], DefaultMaxTxSize)
	if !errors.Is(err, ErrDigestNotFound) {
		t.Fatalf("expected ErrDigestNotFound, got %v", err)
	}
}

func TestAnchorEndToEnd(t *testing.T) {
	digest := sha256.Sum256([]byte("batched commitment"))

	carrier := fakeTx{data: append([]byte("\x01\x00\x00\x00some-prefix-"), append(digest[:], []byte("-some-suffix\x00\x00\x00\x00")...)...)}
	other1 := fakeTx{data: []byte("coinbase-ish bytes")}
	other2 := fakeTx{data: []byte("another unrelated transaction")}

	block := Block{Vtx: []Tx{other1, carrier, other2}}

	root, err := Anchor(block, digest[:], 700000, DefaultMaxTxSize)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, ma := range root.AllAttestations() {
		if b, ok := ma.Attestation.(attestation.BitcoinBlockHeader); ok && b.Height == 700000 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a BitcoinBlockHeader attestation at height 700000 somewhere in the tree")
	}
}

type fakeBitcoinRPC struct {
	hash       [32]byte
	merkleRoot [32]byte
	nTime      uint32
}

func (f fakeBitcoinRPC) GetBlockCount(ctx context.Context) (uint64, error) { return 1, nil }

func (f fakeBitcoinRPC) GetBlockHash(ctx context.Context, height uint64) ([32]byte, error) {
	return f.hash, nil
}

func (f fakeBitcoinRPC) GetBlockHeader(ctx context.Context, hash [32]byte) ([32]byte, uint32, error) {
	if hash != f.hash {
		return [32]byte{}, 0, errors.New("unexpected hash")
	}
	return f.merkleRoot, f.nTime, nil
}

func TestBitcoinOracleMerkleRootAtHeight(t *testing.T) {
	root := sha256.Sum256([]byte("merkle root"))
	rpc := fakeBitcoinRPC{hash: sha256.Sum256([]byte("block hash")), merkleRoot: root, nTime: 1600000000}

	oracle := NewBitcoinOracle(context.Background(), rpc)
	got, nTime, err := oracle.MerkleRootAtHeight(42)
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Fatalf("merkle root mismatch")
	}
	if nTime != 1600000000 {
		t.Fatalf("nTime mismatch: got %d", nTime)
	}
}
