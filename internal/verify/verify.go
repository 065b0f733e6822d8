// Package verify evaluates a timestamp proof against a block-header
// oracle, and prunes a proof tree down to its minimal verifiable form.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chronoproof/internal/attestation"
	"chronoproof/internal/cache"
	"chronoproof/internal/proof"
	"chronoproof/internal/upgrade"
)

// Errors for the verify/prune error taxonomy.
var (
	ErrNoVerifiedAttestation = errors.New("verify: no attestation could be verified")
	ErrOracleRequired        = errors.New("verify: no oracle configured for this attestation class")
	ErrEmptyAfterPrune       = errors.New("verify: pruning produced an empty proof")
)

// Timestamp evaluates root: it first runs a cache-only upgrade sweep
// (plus whatever oracle btcOracle represents), then checks every Bitcoin
// attestation in height-ascending order, returning the first one that
// verifies against btcOracle.
func Timestamp(ctx context.Context, root *proof.Timestamp, c cache.Cache, btcOracle attestation.BitcoinOracle) (uint32, error) {
	eng := upgrade.New(c, nil, nil)
	if _, err := eng.Run(ctx, root, upgrade.Options{}); err != nil {
		return 0, err
	}

	all := root.AllAttestations()
	sort.SliceStable(all, func(i, j int) bool {
		return verifyOrderLess(all[i].Attestation, all[j].Attestation)
	})

	if btcOracle == nil {
		return 0, ErrOracleRequired
	}

	for _, ma := range all {
		btc, ok := ma.Attestation.(attestation.BitcoinBlockHeader)
		if !ok {
			continue
		}
		nTime, err := btc.Verify(ma.Msg, btcOracle)
		if err != nil {
			continue
		}
		return nTime, nil
	}
	return 0, ErrNoVerifiedAttestation
}

// verifyOrderLess orders Bitcoin attestations by height ascending,
// placing every other attestation variant after them.
func verifyOrderLess(a, b attestation.Attestation) bool {
	ba, aIsBTC := a.(attestation.BitcoinBlockHeader)
	bb, bIsBTC := b.(attestation.BitcoinBlockHeader)
	if aIsBTC && bIsBTC {
		return ba.Height < bb.Height
	}
	if aIsBTC != bIsBTC {
		return aIsBTC
	}
	return false
}

// PruneOptions configures a Prune call.
type PruneOptions struct {
	// BitcoinOracle and EthereumOracle back ToVerify's cryptographic
	// checks for their respective classes.
	BitcoinOracle  attestation.BitcoinOracle
	EthereumOracle attestation.EthereumOracle

	// ToVerify lists the attestation classes that must cryptographically
	// verify; any failure is fatal.
	ToVerify []attestation.Tag

	// ToDiscard lists attestation classes to drop unconditionally.
	ToDiscard []attestation.Tag

	// DiscardPendingURIs drops only Pending attestations whose URI
	// exactly matches one of these.
	DiscardPendingURIs []string

	// KeepBestOf lists attestation classes for which only the single
	// best instance (lowest height, ties broken by shallower depth)
	// survives across the whole tree.
	KeepBestOf []attestation.Tag
}

// Prune verifies, discards, and collapses root per opts, returning the
// minimal resulting proof. If the result carries no attestations at all
// it returns ErrEmptyAfterPrune (fatal, per spec.md §4.J) alongside
// whatever partial proof remains for diagnostics.
func Prune(root *proof.Timestamp, opts PruneOptions) (pruned *proof.Timestamp, changed bool, err error) {
	if err := verifyAllAttestations(root, opts.ToVerify, opts.BitcoinOracle, opts.EthereumOracle); err != nil {
		return nil, false, err
	}

	discardSet := make(map[attestation.Tag]bool, len(opts.ToDiscard))
	for _, tag := range opts.ToDiscard {
		discardSet[tag] = true
	}
	pendingSet := make(map[string]bool, len(opts.DiscardPendingURIs))
	for _, uri := range opts.DiscardPendingURIs {
		pendingSet[uri] = true
	}

	result := root
	result = discardAttestations(result, discardSet, pendingSet, &changed)

	for _, cls := range opts.KeepBestOf {
		result = keepBestOf(result, cls, &changed)
	}

	result, prunable := pruneTree(result, &changed)
	if prunable {
		return result, changed, ErrEmptyAfterPrune
	}
	return result, changed, nil
}

func verifyAllAttestations(root *proof.Timestamp, classes []attestation.Tag, btc attestation.BitcoinOracle, eth attestation.EthereumOracle) error {
	if len(classes) == 0 {
		return nil
	}
	wanted := make(map[attestation.Tag]bool, len(classes))
	for _, c := range classes {
		wanted[c] = true
	}
	for _, ma := range root.AllAttestations() {
		if !wanted[ma.Attestation.Tag()] {
			continue
		}
		switch a := ma.Attestation.(type) {
		case attestation.BitcoinBlockHeader:
			if btc == nil {
				return fmt.Errorf("%w: bitcoin", ErrOracleRequired)
			}
			if _, err := a.Verify(ma.Msg, btc); err != nil {
				return err
			}
		case attestation.EthereumBlockHeader:
			if eth == nil {
				return fmt.Errorf("%w: ethereum", ErrOracleRequired)
			}
			if _, err := a.Verify(ma.Msg, eth); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: class %x", attestation.ErrNotVerifiable, a.Tag())
		}
	}
	return nil
}

// discardAttestations rebuilds the tree, dropping any attestation whose
// class is in discardSet, or any Pending attestation whose URI is in
// pendingSet.
func discardAttestations(node *proof.Timestamp, discardSet map[attestation.Tag]bool, pendingSet map[string]bool, changed *bool) *proof.Timestamp {
	out := proof.New(node.Msg())
	for _, a := range node.Attestations() {
		if discardSet[a.Tag()] {
			*changed = true
			continue
		}
		if p, ok := a.(attestation.Pending); ok && pendingSet[p.URI] {
			*changed = true
			continue
		}
		out.AddAttestation(a)
	}
	for _, e := range node.Ops() {
		child := discardAttestations(e.Child, discardSet, pendingSet, changed)
		_ = out.AddChild(e.Op, child)
	}
	return out
}

type located struct {
	node        *proof.Timestamp
	attestation attestation.Attestation
	depth       int
}

// keepBestOf keeps only the globally best instance of cls across the
// whole tree, discarding every other occurrence.
func keepBestOf(root *proof.Timestamp, cls attestation.Tag, changed *bool) *proof.Timestamp {
	var all []located
	locateClass(root, cls, 0, &all)
	if len(all) <= 1 {
		return root
	}

	best := all[0]
	for _, cand := range all[1:] {
		if isBetter(cand, best) {
			best = cand
		}
	}

	return rebuildKeepingOne(root, cls, best, changed)
}

func locateClass(node *proof.Timestamp, cls attestation.Tag, depth int, out *[]located) {
	for _, a := range node.Attestations() {
		if a.Tag() == cls {
			*out = append(*out, located{node: node, attestation: a, depth: depth})
		}
	}
	for _, e := range node.Ops() {
		locateClass(e.Child, cls, depth+1, out)
	}
}

// isBetter reports whether cand is the preferred attestation over best:
// lower height wins, ties broken by shallower depth.
func isBetter(cand, best located) bool {
	ch, cok := heightOf(cand.attestation)
	bh, bok := heightOf(best.attestation)
	if cok && bok && ch != bh {
		return ch < bh
	}
	return cand.depth < best.depth
}

func heightOf(a attestation.Attestation) (uint64, bool) {
	switch v := a.(type) {
	case attestation.BitcoinBlockHeader:
		return v.Height, true
	case attestation.EthereumBlockHeader:
		return v.Height, true
	default:
		return 0, false
	}
}

func rebuildKeepingOne(node *proof.Timestamp, cls attestation.Tag, best located, changed *bool) *proof.Timestamp {
	out := proof.New(node.Msg())
	for _, a := range node.Attestations() {
		if a.Tag() == cls {
			if node == best.node && a.Equal(best.attestation) {
				out.AddAttestation(a)
			} else {
				*changed = true
			}
			continue
		}
		out.AddAttestation(a)
	}
	for _, e := range node.Ops() {
		child := rebuildKeepingOne(e.Child, cls, best, changed)
		_ = out.AddChild(e.Op, child)
	}
	return out
}

// pruneTree removes any op-subtree with no attestations anywhere below
// it. It reports whether node itself is prunable (no attestations and
// every child subtree prunable), letting the caller drop the edge
// leading to node.
func pruneTree(node *proof.Timestamp, changed *bool) (*proof.Timestamp, bool) {
	out := proof.New(node.Msg())
	for _, a := range node.Attestations() {
		out.AddAttestation(a)
	}

	anyChildKept := false
	for _, e := range node.Ops() {
		child, prunable := pruneTree(e.Child, changed)
		if prunable {
			*changed = true
			continue
		}
		_ = out.AddChild(e.Op, child)
		anyChildKept = true
	}

	prunableSelf := len(node.Attestations()) == 0 && !anyChildKept
	return out, prunableSelf
}
