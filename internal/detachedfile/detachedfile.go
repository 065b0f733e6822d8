// Package detachedfile implements the on-disk framing that wraps a proof
// tree around a single file: the detached proof file (a one-shot read),
// and the append-only timestamp log (a sequence of packet-framed records
// written incrementally with length-delimited, truncation tolerant
// framing).
package detachedfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"chronoproof/internal/ops"
	"chronoproof/internal/proof"
	"chronoproof/internal/serialize"
)

// MaxFileDigest bounds the varbytes file digest in a detached proof file.
const MaxFileDigest = 64

// Errors for the detached-file error taxonomy.
var (
	ErrBadMagic         = errors.New("detachedfile: bad magic")
	ErrNonCryptoFirstOp = errors.New("detachedfile: first op must be cryptographic")
)

// detachedMagic is the 32-byte header identifying a detached proof file.
var detachedMagic = append(
	append([]byte{0x00}, []byte("OpenTimestamps")...),
	append([]byte{0x00, 0x00}, append([]byte("Proof"), 0x00, 0xBF, 0x89, 0xE2, 0xE8, 0x84, 0xE8, 0x92, 0x94, 0x00)...)...,
)

// logMagic is the 32-byte header identifying an append-only timestamp log.
var logMagic = append(
	append([]byte{0x00}, []byte("OpenTimestamps")...),
	append([]byte{0x00, 0x00}, append([]byte("Log"), 0x00, 0xD9, 0x19, 0xC5, 0x3A, 0x99, 0xB1, 0x12, 0xE9, 0xA6, 0xA1, 0x00)...)...,
)

// DetachedFile pairs a root Timestamp with the op that derived it from the
// target file's bytes and the digest that op produced.
type DetachedFile struct {
	FileHashOp ops.Op
	FileDigest []byte
	Root       *proof.Timestamp
}

// New builds a DetachedFile from a file's raw bytes and the cryptographic
// op used to digest it; the op's result becomes the root Timestamp's
// message.
func New(fileHashOp ops.Op, fileBytes []byte) (*DetachedFile, error) {
	if !ops.IsCrypto(fileHashOp) {
		return nil, ErrNonCryptoFirstOp
	}
	digest := fileHashOp.Apply(fileBytes)
	return &DetachedFile{
		FileHashOp: fileHashOp,
		FileDigest: digest,
		Root:       proof.New(digest),
	}, nil
}

// Write serializes df as the 32-byte magic, varbytes file digest, the tag
// byte of the cryptographic op used to produce FileDigest, then the
// timestamp body.
func (df *DetachedFile) Write(w io.Writer) error {
	if len(df.FileDigest) > MaxFileDigest {
		return fmt.Errorf("detachedfile: file digest %d bytes exceeds %d", len(df.FileDigest), MaxFileDigest)
	}
	if !ops.IsCrypto(df.FileHashOp) {
		return ErrNonCryptoFirstOp
	}

	sw := serialize.NewWriter()
	sw.WriteBytes(detachedMagic)
	sw.WriteVarbytes(df.FileDigest)
	sw.WriteByte(byte(df.FileHashOp.Tag()))
	if err := df.Root.Serialize(sw); err != nil {
		return err
	}

	_, err := w.Write(sw.Bytes())
	return err
}

// Read parses a detached proof file from r.
func Read(r io.Reader) (*DetachedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sr := serialize.NewReader(data)
	magic, err := sr.Bytes(len(detachedMagic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, detachedMagic) {
		return nil, ErrBadMagic
	}

	digest, err := sr.Varbytes(MaxFileDigest)
	if err != nil {
		return nil, err
	}

	firstTag, err := sr.Byte()
	if err != nil {
		return nil, err
	}
	firstOp, err := ops.DeserializeFromTag(serialize.NewReader(nil), ops.Tag(firstTag))
	if err != nil {
		return nil, err
	}
	if !ops.IsCrypto(firstOp) {
		return nil, ErrNonCryptoFirstOp
	}

	root, err := proof.Deserialize(sr, digest)
	if err != nil {
		return nil, err
	}
	if err := sr.AssertEOF(); err != nil {
		return nil, err
	}

	return &DetachedFile{FileHashOp: firstOp, FileDigest: digest, Root: root}, nil
}

// writeSubPacket writes one framed sub-packet: a 1-byte length (1-255)
// followed by that many bytes.
func writeSubPacket(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > 255 {
			n = 255
		}
		if _, err := w.Write([]byte{byte(n)}); err != nil {
			return err
		}
		if _, err := w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// writePacket frames data as a sequence of sub-packets terminated by a
// zero-length sub-packet, so a truncated write corrupts at most the final
// packet.
func writePacket(w io.Writer, data []byte) error {
	if err := writeSubPacket(w, data); err != nil {
		return err
	}
	_, err := w.Write([]byte{0x00})
	return err
}

// readPacket reads sub-packets until the zero-length terminator and
// returns their concatenation. io.EOF on the length byte of the first
// sub-packet is reported as io.EOF (end of log); truncation mid-packet is
// io.ErrUnexpectedEOF.
func readPacket(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	lenByte := make([]byte, 1)
	first := true
	for {
		if _, err := io.ReadFull(r, lenByte); err != nil {
			if err == io.EOF && first {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		first = false
		n := int(lenByte[0])
		if n == 0 {
			return buf.Bytes(), nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		buf.Write(chunk)
	}
}

// Log is an append-only sequence of packet-framed (length-at-write-time,
// digest, serialized Timestamp) records, one per file digested under the
// same hash algorithm.
type Log struct {
	w          io.Writer
	fileHashOp ops.Op
}

// CreateLog writes the log's magic and op-tag header and returns a Log
// ready for Append calls.
func CreateLog(w io.Writer, fileHashOp ops.Op) (*Log, error) {
	if !ops.IsCrypto(fileHashOp) {
		return nil, ErrNonCryptoFirstOp
	}
	if _, err := w.Write(logMagic); err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte{byte(fileHashOp.Tag())}); err != nil {
		return nil, err
	}
	return &Log{w: w, fileHashOp: fileHashOp}, nil
}

// Record is one entry read back from a Log.
type Record struct {
	LengthAtWrite uint64
	Digest        []byte
	Root          *proof.Timestamp
}

// Append writes one record: the log's length immediately before this
// write, the file digest, and its serialized Timestamp, all wrapped in one
// packet.
func (l *Log) Append(lengthAtWrite uint64, digest []byte, root *proof.Timestamp) error {
	sw := serialize.NewWriter()
	sw.WriteVaruint(lengthAtWrite)
	sw.WriteBytes(digest)
	if err := root.Serialize(sw); err != nil {
		return err
	}
	return writePacket(l.w, sw.Bytes())
}

// OpenLog reads a log's header from r and returns the crypto op it was
// created with, leaving r positioned at the first record.
func OpenLog(r io.Reader) (ops.Op, error) {
	magic := make([]byte, len(logMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(magic, logMagic) {
		return nil, ErrBadMagic
	}
	tagByte := make([]byte, 1)
	if _, err := io.ReadFull(r, tagByte); err != nil {
		return nil, err
	}
	op, err := ops.DeserializeFromTag(serialize.NewReader(nil), ops.Tag(tagByte[0]))
	if err != nil {
		return nil, err
	}
	if !ops.IsCrypto(op) {
		return nil, ErrNonCryptoFirstOp
	}
	return op, nil
}

// ReadRecord reads and unpacks the next packet-framed record, using
// digestLen to split the packet's payload between the fixed-length digest
// and the serialized Timestamp that follows it. Returns io.EOF when the
// log has no more records.
func ReadRecord(r io.Reader, digestLen int) (*Record, error) {
	payload, err := readPacket(r)
	if err != nil {
		return nil, err
	}

	sr := serialize.NewReader(payload)
	lengthAtWrite, err := sr.Varuint()
	if err != nil {
		return nil, err
	}
	digest, err := sr.Bytes(digestLen)
	if err != nil {
		return nil, err
	}
	root, err := proof.Deserialize(sr, digest)
	if err != nil {
		return nil, err
	}
	if err := sr.AssertEOF(); err != nil {
		return nil, err
	}

	return &Record{LengthAtWrite: lengthAtWrite, Digest: digest, Root: root}, nil
}
