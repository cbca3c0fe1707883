package shielded

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/zk-asset/types"
)

// Changeset is an overlay of a State. Reads consult the overlay first and
// then the base; nothing reaches the base until State.Commit.
type Changeset struct {
	base    *State
	version uint64

	leaves      []types.Commitment
	commitments map[types.Commitment]uint64
	nullifiers  map[types.Nullifier]struct{}
}

func (cs *Changeset) hasCommitment(cm types.Commitment) bool {
	if _, ok := cs.commitments[cm]; ok {
		return true
	}
	return cs.base.HasCommitment(cm)
}

func (cs *Changeset) hasNullifier(nf types.Nullifier) bool {
	if _, ok := cs.nullifiers[nf]; ok {
		return true
	}
	return cs.base.HasNullifier(nf)
}

func (cs *Changeset) checkRoot(root common.Hash) error {
	if _, ok := cs.base.roots[root]; !ok {
		return &types.UnknownRootError{Root: root}
	}
	return nil
}

func (cs *Changeset) nullify(nf types.Nullifier) error {
	if cs.hasNullifier(nf) {
		return &types.DoubleSpendError{Nullifier: nf}
	}
	cs.nullifiers[nf] = struct{}{}
	return nil
}

func (cs *Changeset) insert(cm types.Commitment) (uint64, error) {
	if cs.hasCommitment(cm) {
		return 0, &types.DuplicateCommitmentError{Commitment: cm}
	}
	idx := cs.base.NumLeaves() + uint64(len(cs.leaves))
	cs.commitments[cm] = idx
	cs.leaves = append(cs.leaves, cm)
	return idx, nil
}

func (cs *Changeset) ApplyInput(in *Input) error {
	if err := cs.checkRoot(in.MerkleRoot); err != nil {
		return err
	}
	return cs.nullify(in.Nullifier)
}

// ApplyOutput returns the leaf index the commitment will occupy.
func (cs *Changeset) ApplyOutput(out *Output) (uint64, error) {
	return cs.insert(out.Commitment)
}

func (cs *Changeset) ApplyTransient(tr *Transient) error {
	if SingleLeafRoot(cs.base.hasher, tr.Commitment) != tr.InputRoot {
		return &types.UnknownRootError{Root: tr.InputRoot}
	}
	if _, err := cs.insert(tr.Commitment); err != nil {
		return err
	}
	return cs.nullify(tr.Nullifier)
}

// ApplyBundle applies inputs, then outputs, then transients, stopping at
// the first failure. A failed changeset must be discarded.
func (cs *Changeset) ApplyBundle(b *Bundle) error {
	for _, in := range b.Inputs {
		if err := cs.ApplyInput(in); err != nil {
			return err
		}
	}
	for _, out := range b.Outputs {
		if _, err := cs.ApplyOutput(out); err != nil {
			return err
		}
	}
	for _, tr := range b.Transients {
		if err := cs.ApplyTransient(tr); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns the commitments appended by the changeset, in leaf order,
// and the index of the first one.
func (cs *Changeset) Leaves() (uint64, []types.Commitment) {
	return cs.base.NumLeaves(), cs.leaves
}

func (cs *Changeset) Nullifiers() []types.Nullifier {
	ret := make([]types.Nullifier, 0, len(cs.nullifiers))
	for nf := range cs.nullifiers {
		ret = append(ret, nf)
	}
	return ret
}
