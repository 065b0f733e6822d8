package batch

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"chronoproof/internal/proof"
)

func TestStageAndFlushGrowsProofToTip(t *testing.T) {
	b := New()

	digests := [][]byte{
		sha256Sum("one"),
		sha256Sum("two"),
		sha256Sum("three"),
	}

	handles := make([]*Handle, len(digests))
	for i, d := range digests {
		h, err := b.Stage(d)
		if err != nil {
			t.Fatal(err)
		}
		handles[i] = h
	}

	if b.Len() != len(digests) {
		t.Fatalf("expected %d staged, got %d", len(digests), b.Len())
	}

	tip, err := b.Flush()
	if err != nil {
		t.Fatal(err)
	}

	for i, h := range handles {
		if !bytes.Equal(h.FileDigest(), digests[i]) {
			t.Fatalf("handle %d: file digest changed", i)
		}
		if !reachesMsg(h.Proof(), tip.Msg()) {
			t.Fatalf("handle %d: proof does not reach the flushed tip", i)
		}
	}
}

func TestStageAfterFlushFails(t *testing.T) {
	b := New()
	if _, err := b.Stage(sha256Sum("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Stage(sha256Sum("y")); !errors.Is(err, ErrAlreadyFlushed) {
		t.Fatalf("expected ErrAlreadyFlushed, got %v", err)
	}
}

func TestFlushTwiceFails(t *testing.T) {
	b := New()
	if _, err := b.Stage(sha256Sum("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Flush(); !errors.Is(err, ErrAlreadyFlushed) {
		t.Fatalf("expected ErrAlreadyFlushed, got %v", err)
	}
}

func TestFlushEmptyFails(t *testing.T) {
	b := New()
	if _, err := b.Flush(); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestStageNoncesDiffer(t *testing.T) {
	b := New()
	digest := sha256Sum("same-file")

	h1, err := b.Stage(digest)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := b.Stage(digest)
	if err != nil {
		t.Fatal(err)
	}

	n1, n2 := h1.Nonce(), h2.Nonce()
	if bytes.Equal(n1[:], n2[:]) {
		t.Fatal("two stages of the same file digest must get distinct nonces")
	}
	if bytes.Equal(h1.Proof().Msg(), h2.Proof().Msg()) {
		t.Fatal("nonced leaves for identical file digests must not collide")
	}
}

func sha256Sum(s string) []byte {
	d := sha256.Sum256([]byte(s))
	return d[:]
}

func reachesMsg(node *proof.Timestamp, target []byte) bool {
	if bytes.Equal(node.Msg(), target) {
		return true
	}
	for _, e := range node.Ops() {
		if reachesMsg(e.Child, target) {
			return true
		}
	}
	return false
}
