package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"chronoproof/internal/attestation"
	"chronoproof/internal/proof"
)

func sampleTimestamp(t *testing.T, digest []byte) *proof.Timestamp {
	t.Helper()
	ts := proof.New(digest)
	p, err := attestation.NewPending("cal.example.com")
	if err != nil {
		t.Fatal(err)
	}
	ts.AddAttestation(p)
	return ts
}

func TestDirCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenDirCache(dir)
	if err != nil {
		t.Fatal(err)
	}

	digest := sha256.Sum256([]byte("commitment"))
	ts := sampleTimestamp(t, digest[:])

	if err := c.Put(digest[:], ts); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Get(digest[:])
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Equal(ts) {
		t.Fatal("round trip mismatch")
	}

	hexFull := hex.EncodeToString(digest[:])
	wantPath := filepath.Join(dir, hexFull[0:1], hexFull[1:2], hexFull[2:3], hexFull[3:4], hexFull)
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("expected fan-out path %s to exist: %v", wantPath, err)
	}
}

func TestDirCacheMiss(t *testing.T) {
	c, err := OpenDirCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := c.Get([]byte("never written"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestDirCacheOversizedCommitmentIsMiss(t *testing.T) {
	c, err := OpenDirCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := c.Get(make([]byte, MaxCommitmentLen+1))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected oversized commitment to be a miss")
	}
}

func TestDirCacheVersionFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenDirCache(dir); err != nil {
		t.Fatal(err)
	}
	// Reopening the same root must succeed (version file already matches).
	if _, err := OpenDirCache(dir); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
}

func TestBoltCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bolt")
	c, err := OpenBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	digest := sha256.Sum256([]byte("another commitment"))
	ts := sampleTimestamp(t, digest[:])

	if err := c.Put(digest[:], ts); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Get(digest[:])
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Equal(ts) {
		t.Fatal("round trip mismatch")
	}
}

func TestBoltCacheMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bolt")
	c, err := OpenBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, ok, err := c.Get([]byte("absent"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}
