// Package cache implements the content-addressed commitment store the
// upgrade engine reads from and writes to: a plain filesystem layout
// matching spec.md §6 exactly, and an embedded-KV-store alternative for
// deployments that want multi-process safety without hand-rolled
// tempfile+rename locking.
package cache

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"chronoproof/internal/proof"
	"chronoproof/internal/serialize"
)

// MaxCommitmentLen bounds a cacheable commitment; longer keys are treated
// as unconditional misses, per spec.md §6.
const MaxCommitmentLen = 64

// Cache is the interface the upgrade engine depends on.
type Cache interface {
	Get(commitment []byte) (*proof.Timestamp, bool, error)
	Put(commitment []byte, t *proof.Timestamp) error
}

// versionFileContents is the fixed contents of a DirCache's version
// marker file.
const versionFileContents = "1.0\n"

// ErrVersionMismatch indicates a cache root exists with a version file
// that doesn't match versionFileContents.
var ErrVersionMismatch = errors.New("cache: version file mismatch")

// DirCache is the on-disk, content-addressed directory cache: a
// four-level hex fan-out under root, one file per commitment holding its
// serialized Timestamp.
type DirCache struct {
	root string
}

// OpenDirCache opens (creating if necessary) a DirCache rooted at root,
// writing or validating the version file.
func OpenDirCache(root string) (*DirCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating root: %w", err)
	}

	versionPath := filepath.Join(root, "version")
	existing, err := os.ReadFile(versionPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(versionPath, []byte(versionFileContents), 0o644); err != nil {
			return nil, fmt.Errorf("cache: writing version file: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		if string(existing) != versionFileContents {
			return nil, fmt.Errorf("%w: got %q", ErrVersionMismatch, existing)
		}
	}

	return &DirCache{root: root}, nil
}

func (c *DirCache) pathFor(commitment []byte) (string, bool) {
	if len(commitment) > MaxCommitmentLen {
		return "", false
	}
	full := hex.EncodeToString(commitment)
	if len(full) < 4 {
		return "", false
	}
	return filepath.Join(c.root, full[0:1], full[1:2], full[2:3], full[3:4], full), true
}

// Get looks up commitment, reporting a miss (not an error) if absent or
// if commitment exceeds MaxCommitmentLen.
func (c *DirCache) Get(commitment []byte) (*proof.Timestamp, bool, error) {
	p, ok := c.pathFor(commitment)
	if !ok {
		return nil, false, nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	r := serialize.NewReader(data)
	ts, err := proof.Deserialize(r, commitment)
	if err != nil {
		return nil, false, err
	}
	if err := r.AssertEOF(); err != nil {
		return nil, false, err
	}
	return ts, true, nil
}

// Put writes t under commitment via a tempfile-then-rename within the
// same directory, so concurrent single-process writers converge on
// whichever write lands last — writes of the same commitment are
// idempotent, so that's safe.
func (c *DirCache) Put(commitment []byte, t *proof.Timestamp) error {
	p, ok := c.pathFor(commitment)
	if !ok {
		return fmt.Errorf("cache: commitment exceeds %d bytes", MaxCommitmentLen)
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w := serialize.NewWriter()
	if err := t.Serialize(w); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(w.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, p)
}

// BoltCache is a single-file embedded-KV-store cache, keyed by the raw
// commitment bytes.
type BoltCache struct {
	db     *bbolt.DB
	bucket []byte
}

var bucketName = []byte("commitments")

// OpenBoltCache opens (creating if necessary) a bbolt database at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db, bucket: bucketName}, nil
}

// Close closes the underlying database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

// Get looks up commitment.
func (c *BoltCache) Get(commitment []byte) (*proof.Timestamp, bool, error) {
	if len(commitment) > MaxCommitmentLen {
		return nil, false, nil
	}

	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(c.bucket).Get(commitment)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	r := serialize.NewReader(data)
	ts, err := proof.Deserialize(r, commitment)
	if err != nil {
		return nil, false, err
	}
	if err := r.AssertEOF(); err != nil {
		return nil, false, err
	}
	return ts, true, nil
}

// Put writes t under commitment. bbolt's own single-writer transaction
// serialization makes this safe across processes sharing the same file.
func (c *BoltCache) Put(commitment []byte, t *proof.Timestamp) error {
	if len(commitment) > MaxCommitmentLen {
		return fmt.Errorf("cache: commitment exceeds %d bytes", MaxCommitmentLen)
	}
	w := serialize.NewWriter()
	if err := t.Serialize(w); err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.bucket).Put(bytes.Clone(commitment), bytes.Clone(w.Bytes()))
	})
}
