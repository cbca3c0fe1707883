package unshielded

import (
	"bytes"
	"sort"

	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/pkg/errors"
)

var ErrStaleChangeset = errors.New("unshielded: changeset was built against an older set")

// Set is the UTXO set keyed by (intent hash, output number).
type Set struct {
	utxos   map[types.UtxoID]*types.Utxo
	version uint64
}

func NewSet() *Set {
	return &Set{utxos: make(map[types.UtxoID]*types.Utxo)}
}

func (s *Set) Get(id types.UtxoID) (*types.Utxo, bool) {
	u, ok := s.utxos[id]
	return u, ok
}

func (s *Set) Len() int {
	return len(s.utxos)
}

// Insert adds u outside of any offer. It is used for genesis and restore.
func (s *Set) Insert(u *types.Utxo) error {
	if _, ok := s.utxos[u.ID()]; ok {
		return &types.DuplicateUtxoError{ID: u.ID()}
	}
	s.utxos[u.ID()] = u
	s.version++
	return nil
}

// Owned returns the UTXOs of owner in identity order.
func (s *Set) Owned(owner types.UserAddress) []*types.Utxo {
	var ret []*types.Utxo
	for _, u := range s.utxos {
		if u.Owner == owner {
			ret = append(ret, u)
		}
	}
	sortUtxos(ret)
	return ret
}

func sortUtxos(us []*types.Utxo) {
	sort.Slice(us, func(i, j int) bool {
		if c := bytes.Compare(us[i].IntentHash[:], us[j].IntentHash[:]); c != 0 {
			return c < 0
		}
		return us[i].OutputNo < us[j].OutputNo
	})
}

func (s *Set) Begin() *Changeset {
	return &Changeset{
		base:    s,
		version: s.version,
		removed: make(map[types.UtxoID]struct{}),
		added:   make(map[types.UtxoID]*types.Utxo),
	}
}

func (s *Set) Commit(cs *Changeset) error {
	if cs.base != s || cs.version != s.version {
		return ErrStaleChangeset
	}
	for id := range cs.removed {
		delete(s.utxos, id)
	}
	for id, u := range cs.added {
		s.utxos[id] = u
	}
	s.version++
	return nil
}

// Changeset is an overlay of a Set.
type Changeset struct {
	base    *Set
	version uint64
	removed map[types.UtxoID]struct{}
	added   map[types.UtxoID]*types.Utxo
}

func (cs *Changeset) get(id types.UtxoID) (*types.Utxo, bool) {
	if u, ok := cs.added[id]; ok {
		return u, true
	}
	if _, ok := cs.removed[id]; ok {
		return nil, false
	}
	return cs.base.Get(id)
}

// ApplyOffer removes every input, then inserts every output. A repeated
// input, or one that differs from the stored UTXO, is missing.
func (cs *Changeset) ApplyOffer(o *Offer) error {
	if err := o.Validate(); err != nil {
		return err
	}
	for _, in := range o.Inputs {
		stored, ok := cs.get(in.ID())
		if !ok || !stored.Equal(in) {
			return &types.MissingUtxoError{ID: in.ID()}
		}
		if _, ok := cs.added[in.ID()]; ok {
			delete(cs.added, in.ID())
		} else {
			cs.removed[in.ID()] = struct{}{}
		}
	}
	for _, u := range o.Utxos() {
		if _, ok := cs.get(u.ID()); ok {
			return &types.DuplicateUtxoError{ID: u.ID()}
		}
		cs.added[u.ID()] = u
	}
	return nil
}

// Removed returns the identities spent by the changeset.
func (cs *Changeset) Removed() []types.UtxoID {
	ret := make([]types.UtxoID, 0, len(cs.removed))
	for id := range cs.removed {
		ret = append(ret, id)
	}
	return ret
}

// Added returns the outputs created by the changeset in identity order.
func (cs *Changeset) Added() []*types.Utxo {
	ret := make([]*types.Utxo, 0, len(cs.added))
	for _, u := range cs.added {
		ret = append(ret, u)
	}
	sortUtxos(ret)
	return ret
}
