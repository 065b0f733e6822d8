// Package attestation implements the tagged attestation variants that
// terminate a timestamp proof tree: Pending (a calendar URI to poll later),
// BitcoinBlockHeader and EthereumBlockHeader (height-indexed blockchain
// commitments), and Unknown (an opaque forward-compatibility placeholder).
package attestation

import (
	"bytes"
	"errors"
	"fmt"

	"chronoproof/internal/serialize"
)

// Tag is the 8-byte attestation discriminator.
type Tag [8]byte

var (
	TagPending  = Tag{0x83, 0xdf, 0xe3, 0x0d, 0x2e, 0xf9, 0x0c, 0x8e}
	TagBitcoin  = Tag{0x05, 0x88, 0x96, 0x0d, 0x73, 0xd7, 0x19, 0x01}
	TagEthereum = Tag{0x30, 0xfe, 0x80, 0x87, 0xb5, 0xc7, 0xea, 0xd7}
)

// MaxPayload bounds an attestation's serialized payload.
const MaxPayload = 8192

// MaxURILen bounds a Pending attestation's URI.
const MaxURILen = 1000

// uriCharAllowed reports whether b is in the fixed set of printable ASCII characters permitted
// in a Pending URI: letters, digits, and -._/:
func uriCharAllowed(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '/' || b == ':':
		return true
	default:
		return false
	}
}

// Errors for the attestation error taxonomy.
var (
	ErrPayloadTooLong  = errors.New("attestation: payload exceeds maximum length")
	ErrURITooLong      = errors.New("attestation: uri exceeds maximum length")
	ErrIllegalURIChar  = errors.New("attestation: illegal uri character")
	ErrVerification    = errors.New("attestation: verification failed")
	ErrNotVerifiable   = errors.New("attestation: not locally verifiable")
	ErrWrongDigestSize = errors.New("attestation: wrong digest length")
)

// Attestation is a tagged variant terminating a proof tree branch.
type Attestation interface {
	// Tag returns the 8-byte attestation discriminator.
	Tag() Tag

	// SerializePayload writes the attestation's length-prefixed payload.
	SerializePayload(w *serialize.Writer)

	// Equal reports structural equality: same tag and payload.
	Equal(other Attestation) bool

	// String returns a short human-readable form.
	String() string
}

func payloadBytes(a Attestation) []byte {
	w := serialize.NewWriter()
	a.SerializePayload(w)
	return w.Bytes()
}

// Less orders attestations by (tag, payload) lexicographically — the
// canonical ordering used for sorted serialization. Block-header payloads
// compare as LEB128 bytes, which is not numeric height order.
func Less(a, b Attestation) bool {
	ta, tb := a.Tag(), b.Tag()
	if !bytes.Equal(ta[:], tb[:]) {
		return bytes.Compare(ta[:], tb[:]) < 0
	}
	return bytes.Compare(payloadBytes(a), payloadBytes(b)) < 0
}

// Pending records a calendar URI where a more complete sub-proof can later
// be fetched. Not locally verifiable — resolved only by Upgrade.
type Pending struct {
	URI string
}

// NewPending validates uri against the printable-ASCII allowed set and
// length bound and returns a Pending attestation.
func NewPending(uri string) (Pending, error) {
	if len(uri) > MaxURILen {
		return Pending{}, fmt.Errorf("%w: %d > %d", ErrURITooLong, len(uri), MaxURILen)
	}
	for i := 0; i < len(uri); i++ {
		if !uriCharAllowed(uri[i]) {
			return Pending{}, fmt.Errorf("%w: %q at offset %d", ErrIllegalURIChar, uri[i], i)
		}
	}
	return Pending{URI: uri}, nil
}

func (p Pending) Tag() Tag { return TagPending }

func (p Pending) SerializePayload(w *serialize.Writer) {
	inner := serialize.NewWriter()
	inner.WriteVarbytes([]byte(p.URI))
	w.WriteVarbytes(inner.Bytes())
}

func (p Pending) Equal(other Attestation) bool {
	o, ok := other.(Pending)
	return ok && o.URI == p.URI
}

func (p Pending) String() string {
	return fmt.Sprintf("pending(%s)", p.URI)
}

// BitcoinBlockHeader attests that the node's message equals a Bitcoin
// block's merkle root at the given height.
type BitcoinBlockHeader struct {
	Height uint64
}

func (b BitcoinBlockHeader) Tag() Tag { return TagBitcoin }

func (b BitcoinBlockHeader) SerializePayload(w *serialize.Writer) {
	inner := serialize.NewWriter()
	inner.WriteVaruint(b.Height)
	w.WriteVarbytes(inner.Bytes())
}

func (b BitcoinBlockHeader) Equal(other Attestation) bool {
	o, ok := other.(BitcoinBlockHeader)
	return ok && o.Height == b.Height
}

func (b BitcoinBlockHeader) String() string {
	return fmt.Sprintf("bitcoinBlockHeader(%d)", b.Height)
}

// BitcoinOracle resolves a block header's merkle root and time by height,
// the minimal surface verification needs (spec.md §6 node contract).
type BitcoinOracle interface {
	MerkleRootAtHeight(height uint64) (merkleRoot [32]byte, unixTime uint32, err error)
}

// Verify checks msg against the Bitcoin block header at b.Height, returning
// the block's timestamp on success.
func (b BitcoinBlockHeader) Verify(msg []byte, oracle BitcoinOracle) (uint32, error) {
	if len(msg) != 32 {
		return 0, fmt.Errorf("%w: got %d want 32", ErrWrongDigestSize, len(msg))
	}
	root, t, err := oracle.MerkleRootAtHeight(b.Height)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !bytes.Equal(root[:], msg) {
		return 0, fmt.Errorf("%w: merkle root mismatch at height %d", ErrVerification, b.Height)
	}
	return t, nil
}

// EthereumBlockHeader attests that the node's message equals an Ethereum
// block's transactions root at the given height. Filed under "dubious" by
// the upstream project; parsers must still accept it (spec.md §3).
type EthereumBlockHeader struct {
	Height uint64
}

func (e EthereumBlockHeader) Tag() Tag { return TagEthereum }

func (e EthereumBlockHeader) SerializePayload(w *serialize.Writer) {
	inner := serialize.NewWriter()
	inner.WriteVaruint(e.Height)
	w.WriteVarbytes(inner.Bytes())
}

func (e EthereumBlockHeader) Equal(other Attestation) bool {
	o, ok := other.(EthereumBlockHeader)
	return ok && o.Height == e.Height
}

func (e EthereumBlockHeader) String() string {
	return fmt.Sprintf("ethereumBlockHeader(%d)", e.Height)
}

// EthereumOracle resolves an Ethereum block's transactions root and time
// by height. Implemented over go-ethereum's core/types.Header in
// internal/anchor; kept here as a narrow interface so this package never
// imports go-ethereum directly.
type EthereumOracle interface {
	TransactionsRootAtHeight(height uint64) (transactionsRoot [32]byte, unixTime uint64, err error)
}

// Verify checks msg against the Ethereum block header at e.Height.
func (e EthereumBlockHeader) Verify(msg []byte, oracle EthereumOracle) (uint64, error) {
	if len(msg) != 32 {
		return 0, fmt.Errorf("%w: got %d want 32", ErrWrongDigestSize, len(msg))
	}
	root, t, err := oracle.TransactionsRootAtHeight(e.Height)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !bytes.Equal(root[:], msg) {
		return 0, fmt.Errorf("%w: transactions root mismatch at height %d", ErrVerification, e.Height)
	}
	return t, nil
}

// Unknown is an opaque, forward-compatible placeholder for an attestation
// tag this implementation does not recognize. It round-trips bit-exact.
type Unknown struct {
	tag     Tag
	Payload []byte
}

func (u Unknown) Tag() Tag { return u.tag }

func (u Unknown) SerializePayload(w *serialize.Writer) {
	w.WriteVarbytes(u.Payload)
}

func (u Unknown) Equal(other Attestation) bool {
	o, ok := other.(Unknown)
	return ok && o.tag == u.tag && bytes.Equal(o.Payload, u.Payload)
}

func (u Unknown) String() string {
	return fmt.Sprintf("unknown(%x)", u.tag[:])
}

// Deserialize reads one attestation: an 8-byte tag, then a varbytes
// payload bounded by MaxPayload.
func Deserialize(r *serialize.Reader) (Attestation, error) {
	tagBytes, err := r.Bytes(8)
	if err != nil {
		return nil, err
	}
	var tag Tag
	copy(tag[:], tagBytes)

	payload, err := r.Varbytes(MaxPayload)
	if err != nil {
		return nil, err
	}

	switch tag {
	case TagPending:
		return decodePending(payload)
	case TagBitcoin:
		return decodeHeightAttestation(payload, func(h uint64) Attestation { return BitcoinBlockHeader{Height: h} })
	case TagEthereum:
		return decodeHeightAttestation(payload, func(h uint64) Attestation { return EthereumBlockHeader{Height: h} })
	default:
		return Unknown{tag: tag, Payload: payload}, nil
	}
}

func decodePending(payload []byte) (Attestation, error) {
	inner := serialize.NewReader(payload)
	uri, err := inner.Varbytes(MaxURILen)
	if err != nil {
		return nil, err
	}
	if err := inner.AssertEOF(); err != nil {
		return nil, err
	}
	return NewPending(string(uri))
}

func decodeHeightAttestation(payload []byte, construct func(uint64) Attestation) (Attestation, error) {
	inner := serialize.NewReader(payload)
	height, err := inner.Varuint()
	if err != nil {
		return nil, err
	}
	if err := inner.AssertEOF(); err != nil {
		return nil, err
	}
	return construct(height), nil
}

// Serialize writes an attestation's 8-byte tag followed by its
// length-prefixed payload.
func Serialize(w *serialize.Writer, a Attestation) {
	w.WriteBytes(a.Tag().Bytes())
	a.SerializePayload(w)
}

// Bytes returns t as a byte slice.
func (t Tag) Bytes() []byte { return t[:] }
