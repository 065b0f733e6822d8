// Package serialize implements the byte-stream primitives used by the
// timestamp proof wire format: bounded varints, length-prefixed byte
// strings, booleans, and fixed-length reads, plus the trailing-garbage
// and truncation checks the format requires.
package serialize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for the wire-format error taxonomy.
var (
	// ErrTruncation indicates a read ran out of bytes before completing.
	ErrTruncation = errors.New("serialize: truncated read")

	// ErrTrailingGarbage indicates unconsumed bytes remained after a
	// top-level deserialization.
	ErrTrailingGarbage = errors.New("serialize: trailing garbage")

	// ErrInvalidBool indicates a bool byte was neither 0x00 nor 0xff.
	ErrInvalidBool = errors.New("serialize: invalid bool byte")

	// ErrVarintOverflow indicates a varuint continued past 64 bits of
	// precision.
	ErrVarintOverflow = errors.New("serialize: varuint overflow")

	// ErrVarbytesTooLong indicates a varbytes payload exceeded its
	// caller-supplied maximum.
	ErrVarbytesTooLong = errors.New("serialize: varbytes exceeds maximum length")
)

// Reader reads the primitives of the wire format from an in-memory buffer.
// Unlike io.Reader, short reads are always an error (ErrTruncation) — the
// format has no notion of a partial primitive.
type Reader struct {
	r *bytes.Reader
}

// NewReader wraps data for sequential primitive reads.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int {
	return r.r.Len()
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: wanted %d bytes: %v", ErrTruncation, n, err)
	}
	return buf, nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncation, err)
	}
	return b, nil
}

// PeekByte returns the next byte without consuming it. It is an error to
// call PeekByte at end of stream.
func (r *Reader) PeekByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncation, err)
	}
	if err := r.r.UnreadByte(); err != nil {
		return 0, err
	}
	return b, nil
}

// Bool reads a single byte encoding a boolean: 0x00 is false, 0xff is true,
// any other value is ErrInvalidBool.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0x00:
		return false, nil
	case 0xff:
		return true, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, b)
	}
}

// Varuint reads an unsigned LEB128 varint: 7 bits per byte, little-endian,
// continuation in the high bit.
func (r *Reader) Varuint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		// The byte at shift 63 has room for one bit and no continuation.
		if shift >= 63 && b > 0x01 {
			return 0, ErrVarintOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// Varbytes reads a varuint length followed by that many raw bytes. max
// bounds the length so a corrupt or hostile length prefix can't force a
// huge allocation.
func (r *Reader) Varbytes(max uint64) ([]byte, error) {
	n, err := r.Varuint()
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrVarbytesTooLong, n, max)
	}
	return r.Bytes(int(n))
}

// AssertEOF fails with ErrTrailingGarbage if any unconsumed bytes remain.
func (r *Reader) AssertEOF() error {
	if r.r.Len() != 0 {
		return fmt.Errorf("%w: %d bytes remain", ErrTrailingGarbage, r.r.Len())
	}
	return nil
}

// Writer accumulates the primitives of the wire format into a byte buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// WriteBytes writes raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// WriteByte writes a single byte. It always returns nil; the signature
// matches io.ByteWriter for interop with bytes.Buffer-backed writers.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteBool writes a boolean as 0x00 or 0xff.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(0xff)
	} else {
		w.buf.WriteByte(0x00)
	}
}

// WriteVaruint writes n as an unsigned LEB128 varint.
func (w *Writer) WriteVaruint(n uint64) {
	for n >= 0x80 {
		w.buf.WriteByte(byte(n) | 0x80)
		n >>= 7
	}
	w.buf.WriteByte(byte(n))
}

// WriteVarbytes writes a varuint length prefix followed by data.
func (w *Writer) WriteVarbytes(data []byte) {
	w.WriteVaruint(uint64(len(data)))
	w.buf.Write(data)
}
