// Package ops implements the deterministic byte-transform operations that
// form the edges of a timestamp proof tree: append, prepend, reverse,
// hexlify, and the cryptographic hashes SHA1, RIPEMD160, and SHA256.
//
// Each Op is a pure function from a message to its result. Ops are
// identified structurally by (tag, payload), compared and ordered by that
// pair, and registered at parse time in a tag->constructor table rather
// than dispatched through a shared interface method set — the set of tags
// is closed and small, so a registry keeps decoding centralized in one
// place (see Deserialize).
package ops

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160"

	"chronoproof/internal/serialize"
)

// Tag identifies an operation's wire-format byte.
type Tag byte

// Operation tags, per the timestamp proof wire format.
const (
	TagSHA1      Tag = 0x02
	TagRIPEMD160 Tag = 0x03
	TagSHA256    Tag = 0x08
	TagAppend    Tag = 0xf0
	TagPrepend   Tag = 0xf1
	TagReverse   Tag = 0xf2
	TagHexlify   Tag = 0xf3
)

// MaxPayload bounds append/prepend payloads at 2^20 bytes.
const MaxPayload = 1 << 20

// ErrUnknownTag indicates a tag byte with no registered Op.
var ErrUnknownTag = errors.New("ops: unknown operation tag")

// Op is a single edge of a timestamp proof tree: a pure, total function
// from an input message to an output message.
type Op interface {
	// Tag returns the op's wire-format tag byte.
	Tag() Tag

	// Apply transforms msg into the op's result. Never mutates msg.
	Apply(msg []byte) []byte

	// SerializePayload writes the op's immediate payload, if any.
	SerializePayload(w *serialize.Writer)

	// Equal reports structural equality: same tag and payload.
	Equal(other Op) bool

	// String returns a short human-readable form, used by pretty-printing.
	String() string
}

// IsCrypto reports whether op is one of the cryptographic hash ops — the
// only ops permitted to begin a proof tree's root, per the serialization
// format.
func IsCrypto(op Op) bool {
	switch op.Tag() {
	case TagSHA1, TagRIPEMD160, TagSHA256:
		return true
	default:
		return false
	}
}

// DigestLen returns the fixed output length of a cryptographic op's tag,
// or 0 if tag does not name a hash op.
func DigestLen(tag Tag) int {
	switch tag {
	case TagSHA1, TagRIPEMD160:
		return 20
	case TagSHA256:
		return 32
	default:
		return 0
	}
}

// Less orders ops by (tag, payload) lexicographically, the canonical
// traversal order required wherever a node's edges must be sorted.
func Less(a, b Op) bool {
	if a.Tag() != b.Tag() {
		return a.Tag() < b.Tag()
	}
	return bytes.Compare(payloadOf(a), payloadOf(b)) < 0
}

func payloadOf(op Op) []byte {
	w := serialize.NewWriter()
	op.SerializePayload(w)
	return w.Bytes()
}

// unaryHash implements the three fixed-tag, no-payload hash ops.
type unaryHash struct {
	tag Tag
}

func (h unaryHash) Tag() Tag { return h.tag }

func (h unaryHash) Apply(msg []byte) []byte {
	switch h.tag {
	case TagSHA1:
		sum := sha1.Sum(msg)
		return sum[:]
	case TagRIPEMD160:
		hasher := ripemd160.New()
		hasher.Write(msg)
		return hasher.Sum(nil)
	case TagSHA256:
		sum := sha256.Sum256(msg)
		return sum[:]
	default:
		panic("ops: unary hash with non-hash tag")
	}
}

func (h unaryHash) SerializePayload(w *serialize.Writer) {}

func (h unaryHash) Equal(other Op) bool {
	o, ok := other.(unaryHash)
	return ok && o.tag == h.tag
}

func (h unaryHash) String() string {
	switch h.tag {
	case TagSHA1:
		return "sha1"
	case TagRIPEMD160:
		return "ripemd160"
	case TagSHA256:
		return "sha256"
	default:
		return "unknown-hash"
	}
}

// SHA1 returns the SHA-1 op.
func SHA1() Op { return unaryHash{TagSHA1} }

// RIPEMD160 returns the RIPEMD-160 op.
func RIPEMD160() Op { return unaryHash{TagRIPEMD160} }

// SHA256 returns the SHA-256 op.
func SHA256() Op { return unaryHash{TagSHA256} }

// reverseOp reverses the message byte order. Deprecated by the format but
// must still parse and evaluate.
type reverseOp struct{}

func (reverseOp) Tag() Tag { return TagReverse }

func (reverseOp) Apply(msg []byte) []byte {
	out := make([]byte, len(msg))
	for i, b := range msg {
		out[len(msg)-1-i] = b
	}
	return out
}

func (reverseOp) SerializePayload(w *serialize.Writer) {}
func (reverseOp) Equal(other Op) bool                  { _, ok := other.(reverseOp); return ok }
func (reverseOp) String() string                       { return "reverse" }

// Reverse returns the (deprecated) reverse op.
func Reverse() Op { return reverseOp{} }

// hexlifyOp lowercase-hex-encodes the message. Accepted by Deserialize and
// constructible via Hexlify; never emitted by the core stamping pipeline.
type hexlifyOp struct{}

func (hexlifyOp) Tag() Tag { return TagHexlify }

func (hexlifyOp) Apply(msg []byte) []byte {
	return []byte(hex.EncodeToString(msg))
}

func (hexlifyOp) SerializePayload(w *serialize.Writer) {}
func (hexlifyOp) Equal(other Op) bool                  { _, ok := other.(hexlifyOp); return ok }
func (hexlifyOp) String() string                       { return "hexlify" }

// Hexlify returns the hexlify op.
func Hexlify() Op { return hexlifyOp{} }

// binaryOp implements append/prepend, which carry a varbytes payload.
type binaryOp struct {
	tag     Tag
	operand []byte
}

func (b binaryOp) Tag() Tag { return b.tag }

func (b binaryOp) Apply(msg []byte) []byte {
	switch b.tag {
	case TagAppend:
		out := make([]byte, 0, len(msg)+len(b.operand))
		out = append(out, msg...)
		out = append(out, b.operand...)
		return out
	case TagPrepend:
		out := make([]byte, 0, len(msg)+len(b.operand))
		out = append(out, b.operand...)
		out = append(out, msg...)
		return out
	default:
		panic("ops: binary op with non-binary tag")
	}
}

func (b binaryOp) SerializePayload(w *serialize.Writer) {
	w.WriteVarbytes(b.operand)
}

func (b binaryOp) Equal(other Op) bool {
	o, ok := other.(binaryOp)
	return ok && o.tag == b.tag && bytes.Equal(o.operand, b.operand)
}

func (b binaryOp) String() string {
	name := "append"
	if b.tag == TagPrepend {
		name = "prepend"
	}
	return fmt.Sprintf("%s %x", name, b.operand)
}

// Append returns an append op with the given suffix. The suffix must be
// at most MaxPayload bytes; callers constructing ops directly (as opposed
// to deserializing) are responsible for that bound.
func Append(suffix []byte) Op { return binaryOp{TagAppend, append([]byte(nil), suffix...)} }

// Prepend returns a prepend op with the given prefix.
func Prepend(prefix []byte) Op { return binaryOp{TagPrepend, append([]byte(nil), prefix...)} }

// Deserialize reads a single op (tag + payload, no child) from r.
func Deserialize(r *serialize.Reader) (Op, error) {
	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}
	return deserializeFromTag(r, Tag(tag))
}

func deserializeFromTag(r *serialize.Reader, tag Tag) (Op, error) {
	switch tag {
	case TagSHA1, TagRIPEMD160, TagSHA256:
		return unaryHash{tag}, nil
	case TagReverse:
		return reverseOp{}, nil
	case TagHexlify:
		return hexlifyOp{}, nil
	case TagAppend, TagPrepend:
		operand, err := r.Varbytes(MaxPayload)
		if err != nil {
			return nil, err
		}
		return binaryOp{tag, operand}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(tag))
	}
}

// DeserializeFromTag reads the payload for an already-consumed tag byte.
// Exported for callers (the proof tree deserializer) that must peek the
// tag before deciding whether it introduces an op, an attestation, or the
// 0xff continuation marker.
func DeserializeFromTag(r *serialize.Reader, tag Tag) (Op, error) {
	return deserializeFromTag(r, tag)
}
