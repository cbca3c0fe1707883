package shielded

import (
	"bytes"
	"hash"
	"sort"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/pkg/errors"
)

// DefaultRootRetention is one hour of ledger time, in seconds.
const DefaultRootRetention = uint64(3600)

var ErrStaleChangeset = errors.New("shielded: changeset was built against an older state")

// State is the shielded accumulator: an append-only commitment tree, the
// commitment and nullifier sets, and the time-windowed root history.
type State struct {
	hasher func() hash.Hash

	tree        *merkletree.Tree
	leaves      []types.Commitment
	commitments map[types.Commitment]uint64
	nullifiers  map[types.Nullifier]struct{}
	roots       map[common.Hash]uint64
	root        common.Hash
	version     uint64
}

func NewState(hasher func() hash.Hash) *State {
	return &State{
		hasher:      hasher,
		tree:        merkletree.New(hasher()),
		commitments: make(map[types.Commitment]uint64),
		nullifiers:  make(map[types.Nullifier]struct{}),
		roots:       make(map[common.Hash]uint64),
	}
}

func (st *State) Version() uint64 {
	return st.version
}

// Root returns the root of the tree as it is now. An empty tree has the
// zero root.
func (st *State) Root() common.Hash {
	return st.root
}

func (st *State) NumLeaves() uint64 {
	return uint64(len(st.leaves))
}

// Leaf returns the commitment at index.
func (st *State) Leaf(index uint64) (types.Commitment, bool) {
	if index >= uint64(len(st.leaves)) {
		return types.Commitment{}, false
	}
	return st.leaves[index], true
}

func (st *State) HasCommitment(cm types.Commitment) bool {
	_, ok := st.commitments[cm]
	return ok
}

// CommitmentIndex returns the leaf index of cm.
func (st *State) CommitmentIndex(cm types.Commitment) (uint64, bool) {
	idx, ok := st.commitments[cm]
	return idx, ok
}

func (st *State) HasNullifier(nf types.Nullifier) bool {
	_, ok := st.nullifiers[nf]
	return ok
}

// RootTime returns the ledger time root was recorded at, if it is still
// in the history.
func (st *State) RootTime(root common.Hash) (uint64, bool) {
	ts, ok := st.roots[root]
	return ts, ok
}

// Roots returns the root history ordered by time.
func (st *State) Roots() []RootEntry {
	ret := make([]RootEntry, 0, len(st.roots))
	for r, ts := range st.roots {
		ret = append(ret, RootEntry{Root: r, Time: ts})
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Time != ret[j].Time {
			return ret[i].Time < ret[j].Time
		}
		return bytes.Compare(ret[i].Root[:], ret[j].Root[:]) < 0
	})
	return ret
}

// Nullifiers returns the nullifier set in byte order.
func (st *State) Nullifiers() []types.Nullifier {
	ret := make([]types.Nullifier, 0, len(st.nullifiers))
	for nf := range st.nullifiers {
		ret = append(ret, nf)
	}
	sort.Slice(ret, func(i, j int) bool { return bytes.Compare(ret[i][:], ret[j][:]) < 0 })
	return ret
}

type RootEntry struct {
	Root common.Hash
	Time uint64
}

// Begin opens a changeset against the current version of the state.
func (st *State) Begin() *Changeset {
	return &Changeset{
		base:        st,
		version:     st.version,
		commitments: make(map[types.Commitment]uint64),
		nullifiers:  make(map[types.Nullifier]struct{}),
	}
}

// Commit swaps the changeset into the state. The root history is not
// touched until the next PostBlock.
func (st *State) Commit(cs *Changeset) error {
	if cs.base != st || cs.version != st.version {
		return ErrStaleChangeset
	}
	for _, cm := range cs.leaves {
		st.push(cm)
	}
	for nf := range cs.nullifiers {
		st.nullifiers[nf] = struct{}{}
	}
	st.root = rootOf(st.tree)
	st.version++
	return nil
}

func (st *State) push(cm types.Commitment) {
	st.commitments[cm] = uint64(len(st.leaves))
	st.leaves = append(st.leaves, cm)
	st.tree.Push(cm[:])
}

// PostBlock records the current root at ledger time ts and evicts every
// root recorded before ts-retention. The current root is never evicted.
func (st *State) PostBlock(ts, retention uint64) (common.Hash, []common.Hash) {
	st.roots[st.root] = ts

	var evicted []common.Hash
	for r, rts := range st.roots {
		if r == st.root {
			continue
		}
		if rts+retention < ts {
			evicted = append(evicted, r)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return bytes.Compare(evicted[i][:], evicted[j][:]) < 0 })
	for _, r := range evicted {
		delete(st.roots, r)
	}
	st.version++
	return st.root, evicted
}

// Restore rebuilds a state from persisted parts. leaves must be in index order.
func Restore(hasher func() hash.Hash, leaves []types.Commitment, nullifiers []types.Nullifier, roots []RootEntry) *State {
	st := NewState(hasher)
	for _, cm := range leaves {
		st.push(cm)
	}
	for _, nf := range nullifiers {
		st.nullifiers[nf] = struct{}{}
	}
	for _, r := range roots {
		st.roots[r.Root] = r.Time
	}
	st.root = rootOf(st.tree)
	return st
}

// MerklePath returns the authentication path of the leaf at index against
// the current root.
func (st *State) MerklePath(index uint64) (*MerklePath, error) {
	if index >= uint64(len(st.leaves)) {
		return nil, errors.Errorf("shielded: leaf %d out of range (%d leaves)", index, len(st.leaves))
	}
	var buf bytes.Buffer
	for _, cm := range st.leaves {
		buf.Write(cm[:])
	}
	h := st.hasher()
	root, proofSet, numLeaves, err := merkletree.BuildReaderProof(&buf, h, 32, index)
	if err != nil {
		return nil, errors.Wrap(err, "shielded: build merkle proof")
	}
	return &MerklePath{
		Root:      common.BytesToHash(root),
		ProofSet:  proofSet,
		Index:     index,
		NumLeaves: numLeaves,
	}, nil
}

// MerklePath proves that ProofSet[0] is the leaf at Index of a tree of
// NumLeaves leaves with the given Root.
type MerklePath struct {
	Root      common.Hash
	ProofSet  [][]byte
	Index     uint64
	NumLeaves uint64
}

func (p *MerklePath) Verify(hasher func() hash.Hash) bool {
	if len(p.ProofSet) == 0 {
		return false
	}
	return merkletree.VerifyProof(hasher(), p.Root[:], p.ProofSet, p.Index, p.NumLeaves)
}

// PathStep is one level of a membership path. Left is set when Sibling
// is hashed in front of the running node.
type PathStep struct {
	Sibling []byte
	Left    bool
}

// Steps folds the proof set into the ordered hashing steps from the leaf to
// the root, following how the unbalanced tree merges orphan subtrees.
func (p *MerklePath) Steps() ([]PathStep, error) {
	if len(p.ProofSet) == 0 || p.Index >= p.NumLeaves {
		return nil, errors.New("shielded: malformed merkle path")
	}

	var steps []PathStep
	height := 1
	next := func(left bool) error {
		if height >= len(p.ProofSet) {
			return errors.New("shielded: merkle path too short")
		}
		steps = append(steps, PathStep{Sibling: p.ProofSet[height], Left: left})
		height++
		return nil
	}

	stableEnd := p.Index
	for {
		start := (p.Index >> uint(height)) << uint(height)
		end := start + (1 << uint(height)) - 1
		if end >= p.NumLeaves {
			break
		}
		stableEnd = end
		if err := next(p.Index-start >= 1<<uint(height-1)); err != nil {
			return nil, err
		}
	}
	if stableEnd != p.NumLeaves-1 {
		if err := next(false); err != nil {
			return nil, err
		}
	}
	for height < len(p.ProofSet) {
		_ = next(true)
	}
	return steps, nil
}

// SingleLeafRoot is the root of the ephemeral one-leaf tree holding cm.
func SingleLeafRoot(hasher func() hash.Hash, cm types.Commitment) common.Hash {
	tree := merkletree.New(hasher())
	tree.Push(cm[:])
	return rootOf(tree)
}

func rootOf(tree *merkletree.Tree) common.Hash {
	r := tree.Root()
	if r == nil {
		return common.Hash{}
	}
	return common.BytesToHash(r)
}
