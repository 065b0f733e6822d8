// Package proof implements the timestamp proof tree: a node holding a
// message, the set of attestations directly on that message, and a mapping
// from operation to the child node that operation produces. This is the
// consensus-critical data structure of the whole system — its
// serialization, merge algebra, and traversal helpers are depended on by
// every other package.
package proof

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"chronoproof/internal/attestation"
	"chronoproof/internal/ops"
	"chronoproof/internal/serialize"
)

// Errors for the invariant/value error taxonomy.
var (
	// ErrEmptyTimestamp indicates an attempt to serialize a node with no
	// attestations and no ops — prohibited by the wire format.
	ErrEmptyTimestamp = errors.New("proof: empty timestamp cannot be serialized")

	// ErrMismatchedMerge indicates a merge between timestamps over
	// different messages.
	ErrMismatchedMerge = errors.New("proof: merge requires equal messages")

	// ErrChildMessageMismatch indicates a deserialized or constructed
	// child's message does not equal op(parent.msg).
	ErrChildMessageMismatch = errors.New("proof: child message does not match op applied to parent")
)

// edge pairs an Op with the child Timestamp it produces.
type edge struct {
	op    ops.Op
	child *Timestamp
}

// Timestamp is one node of a proof tree: invariant 1 (op(msg) == child.msg
// for every edge) is enforced at construction time by AddOp/Merge/
// Deserialize, never re-checked lazily.
type Timestamp struct {
	msg          []byte
	attestations []attestation.Attestation
	edges        []edge
}

// New creates a leaf Timestamp over msg with no attestations or ops.
func New(msg []byte) *Timestamp {
	return &Timestamp{msg: append([]byte(nil), msg...)}
}

// Msg returns the node's message. The returned slice must not be mutated.
func (t *Timestamp) Msg() []byte { return t.msg }

// AddAttestation adds a (unique) attestation to this node. Adding the same
// attestation twice is a no-op, matching set semantics (invariant 4).
func (t *Timestamp) AddAttestation(a attestation.Attestation) {
	for _, existing := range t.attestations {
		if existing.Equal(a) {
			return
		}
	}
	t.attestations = append(t.attestations, a)
}

// Attestations returns the node's own attestations in canonical sorted
// order. The returned slice is a copy; mutating it does not affect t.
func (t *Timestamp) Attestations() []attestation.Attestation {
	out := append([]attestation.Attestation(nil), t.attestations...)
	sortAttestations(out)
	return out
}

func sortAttestations(a []attestation.Attestation) {
	sort.SliceStable(a, func(i, j int) bool { return attestation.Less(a[i], a[j]) })
}

// sortedEdges returns the node's edges sorted by their op's (tag, payload).
func (t *Timestamp) sortedEdges() []edge {
	out := append([]edge(nil), t.edges...)
	sort.SliceStable(out, func(i, j int) bool { return ops.Less(out[i].op, out[j].op) })
	return out
}

// Op returns the child Timestamp for op if present.
func (t *Timestamp) Op(op ops.Op) (*Timestamp, bool) {
	for _, e := range t.edges {
		if e.op.Equal(op) {
			return e.child, true
		}
	}
	return nil, false
}

// Ops returns the node's (op, child) edges, unsorted.
func (t *Timestamp) Ops() []struct {
	Op    ops.Op
	Child *Timestamp
} {
	out := make([]struct {
		Op    ops.Op
		Child *Timestamp
	}, len(t.edges))
	for i, e := range t.edges {
		out[i].Op = e.op
		out[i].Child = e.child
	}
	return out
}

// Add inserts op as an edge, computing its child by applying op to t.msg.
// If op is already present, the insert is idempotent: Add returns the
// existing child without modifying the tree. Add is how a proof tree is
// grown locally (e.g. before submission to a calendar).
func (t *Timestamp) Add(op ops.Op) *Timestamp {
	if child, ok := t.Op(op); ok {
		return child
	}
	child := New(op.Apply(t.msg))
	t.edges = append(t.edges, edge{op: op, child: child})
	return child
}

// AddChild inserts op -> child, verifying invariant 1: op(t.msg) must
// equal child.Msg(). Used by Merge and Deserialize, where the child may
// already carry its own sub-edges and attestations.
func (t *Timestamp) AddChild(op ops.Op, child *Timestamp) error {
	want := op.Apply(t.msg)
	if !bytes.Equal(want, child.msg) {
		return fmt.Errorf("%w: op %v", ErrChildMessageMismatch, op)
	}
	if existing, ok := t.Op(op); ok {
		return existing.Merge(child)
	}
	t.edges = append(t.edges, edge{op: op, child: child})
	return nil
}

// Equal reports structural equality (invariant 3): same msg, same
// attestation set, and the same mapping of ops to (recursively) equal
// children.
func (t *Timestamp) Equal(other *Timestamp) bool {
	if other == nil {
		return false
	}
	if !bytes.Equal(t.msg, other.msg) {
		return false
	}
	if len(t.attestations) != len(other.attestations) {
		return false
	}
	for _, a := range t.attestations {
		found := false
		for _, b := range other.attestations {
			if a.Equal(b) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(t.edges) != len(other.edges) {
		return false
	}
	for _, e := range t.edges {
		oc, ok := other.Op(e.op)
		if !ok || !e.child.Equal(oc) {
			return false
		}
	}
	return true
}

// Merge unions other into t in place. Requires t.Msg() == other.Msg();
// otherwise ErrMismatchedMerge. Attestation sets are unioned; for each of
// other's (op, child) edges, the child is recursively merged into t's
// existing child for that op, or adopted wholesale if t has none. Merge is
// commutative, associative, and idempotent (spec.md §8 property 3).
func (t *Timestamp) Merge(other *Timestamp) error {
	if !bytes.Equal(t.msg, other.msg) {
		return fmt.Errorf("%w: %x != %x", ErrMismatchedMerge, t.msg, other.msg)
	}
	for _, a := range other.attestations {
		t.AddAttestation(a)
	}
	for _, e := range other.edges {
		if existing, ok := t.Op(e.op); ok {
			if err := existing.Merge(e.child); err != nil {
				return err
			}
			continue
		}
		t.edges = append(t.edges, edge{op: e.op, child: cloneTimestamp(e.child)})
	}
	return nil
}

func cloneTimestamp(t *Timestamp) *Timestamp {
	clone := New(t.msg)
	clone.attestations = append(clone.attestations, t.attestations...)
	for _, e := range t.edges {
		clone.edges = append(clone.edges, edge{op: e.op, child: cloneTimestamp(e.child)})
	}
	return clone
}

// Serialize writes the node per spec.md §4.D: attestations first then
// ops, both sorted, each item but the last prefixed with 0xff. An empty
// node (no attestations, no ops) is an error.
func (t *Timestamp) Serialize(w *serialize.Writer) error {
	atts := t.Attestations()
	edges := t.sortedEdges()

	total := len(atts) + len(edges)
	if total == 0 {
		return ErrEmptyTimestamp
	}

	var childErr error
	items := make([]func(last bool), 0, total)
	for _, a := range atts {
		a := a
		items = append(items, func(last bool) {
			if !last {
				w.WriteByte(0xff)
			}
			w.WriteByte(0x00)
			attestation.Serialize(w, a)
		})
	}
	for _, e := range edges {
		e := e
		items = append(items, func(last bool) {
			if !last {
				w.WriteByte(0xff)
			}
			w.WriteByte(byte(e.op.Tag()))
			e.op.SerializePayload(w)
			// A child with neither attestations nor ops (e.g. one left
			// bare by Add) fails with ErrEmptyTimestamp; the first such
			// error is returned.
			if err := e.child.Serialize(w); err != nil && childErr == nil {
				childErr = err
			}
		})
	}

	for i, item := range items {
		item(i == len(items)-1)
	}
	return childErr
}

// Deserialize reads a node whose message is initialMsg. Because the wire
// format never repeats the message a node commits to, the caller supplies
// it — at the root that's the detached file's digest; for every other
// node it is derived by applying the parent's op.
func Deserialize(r *serialize.Reader, initialMsg []byte) (*Timestamp, error) {
	t := New(initialMsg)

	tag, err := r.Byte()
	if err != nil {
		return nil, err
	}

	for {
		last := tag != 0xff
		var itemTag byte
		if last {
			itemTag = tag
		} else {
			itemTag, err = r.Byte()
			if err != nil {
				return nil, err
			}
		}

		if itemTag == 0x00 {
			a, err := attestation.Deserialize(r)
			if err != nil {
				return nil, err
			}
			t.AddAttestation(a)
		} else {
			op, err := ops.DeserializeFromTag(r, ops.Tag(itemTag))
			if err != nil {
				return nil, err
			}
			childMsg := op.Apply(initialMsg)
			child, err := Deserialize(r, childMsg)
			if err != nil {
				return nil, err
			}
			if err := t.AddChild(op, child); err != nil {
				return nil, err
			}
		}

		if last {
			return t, nil
		}
		tag, err = r.Byte()
		if err != nil {
			return nil, err
		}
	}
}

// AllAttestations yields every (msg, attestation) pair in the tree,
// pre-order.
func (t *Timestamp) AllAttestations() []MsgAttestation {
	var out []MsgAttestation
	for _, a := range t.Attestations() {
		out = append(out, MsgAttestation{Msg: t.msg, Attestation: a})
	}
	for _, e := range t.sortedEdges() {
		out = append(out, e.child.AllAttestations()...)
	}
	return out
}

// MsgAttestation pairs a message with an attestation found on it.
type MsgAttestation struct {
	Msg         []byte
	Attestation attestation.Attestation
}

// DirectlyVerified yields every sub-timestamp that itself carries at
// least one attestation, pruning the search below such nodes (a node with
// an attestation may still have further ops beneath it, e.g. a
// Bitcoin-attested node that also continues toward a deeper chain — but
// upgrade only needs the shallowest attested nodes to poll).
func (t *Timestamp) DirectlyVerified() []*Timestamp {
	if len(t.attestations) > 0 {
		return []*Timestamp{t}
	}
	var out []*Timestamp
	for _, e := range t.sortedEdges() {
		out = append(out, e.child.DirectlyVerified()...)
	}
	return out
}

// WalkAll yields every sub-timestamp in the tree, pre-order, including t
// itself. Used by the upgrade engine's cache sweep.
func (t *Timestamp) WalkAll() []*Timestamp {
	out := []*Timestamp{t}
	for _, e := range t.sortedEdges() {
		out = append(out, e.child.WalkAll()...)
	}
	return out
}

// IsComplete reports whether the tree contains any BitcoinBlockHeader
// attestation.
func (t *Timestamp) IsComplete() bool {
	for _, ma := range t.AllAttestations() {
		if _, ok := ma.Attestation.(attestation.BitcoinBlockHeader); ok {
			return true
		}
	}
	return false
}

// StrTree renders a multi-line, human-readable representation of the
// tree, for diagnostics only — never used by the core algorithms.
func (t *Timestamp) StrTree(verbosity int) string {
	var buf bytes.Buffer
	t.writeTree(&buf, 0, verbosity)
	return buf.String()
}

func (t *Timestamp) writeTree(buf *bytes.Buffer, indent int, verbosity int) {
	pad := func() {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
	}
	if verbosity > 0 {
		pad()
		fmt.Fprintf(buf, "msg: %x\n", t.msg)
	}
	for _, a := range t.Attestations() {
		pad()
		fmt.Fprintf(buf, "%s\n", a.String())
	}
	for _, e := range t.sortedEdges() {
		pad()
		fmt.Fprintf(buf, "%s\n", e.op.String())
		e.child.writeTree(buf, indent+4, verbosity)
	}
}
