package store

import (
	"encoding/binary"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/effects"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
	"github.com/pkg/errors"
)

// SchemaVersion is bumped whenever the key layout changes.
const SchemaVersion = 1

var (
	commitmentPrefix = []byte("c")
	nullifierPrefix  = []byte("n")
	rootPrefix       = []byte("r")
	utxoPrefix       = []byte("u")
	balancePrefix    = []byte("b")
	metaKey          = []byte("m")

	present = []byte{1}

	ErrSchemaVersion = errors.New("store: unsupported schema version")
)

func commitmentKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, commitmentPrefix...), index)
}

func nullifierKey(nf types.Nullifier) []byte {
	return append(append([]byte{}, nullifierPrefix...), nf[:]...)
}

func rootKey(root common.Hash) []byte {
	return append(append([]byte{}, rootPrefix...), root[:]...)
}

func utxoKey(id types.UtxoID) []byte {
	key := append(append([]byte{}, utxoPrefix...), id.IntentHash[:]...)
	return binary.BigEndian.AppendUint32(key, id.OutputNo)
}

func balanceKey(addr types.ContractAddress) []byte {
	return append(append([]byte{}, balancePrefix...), addr[:]...)
}

// Meta describes the persisted ledger as a whole.
type Meta struct {
	Schema    uint64
	Time      uint64
	NumLeaves uint64
}

type balanceEntry struct {
	Type  types.TokenType
	Value *uint256.Int
}

// Store persists ledger state in a go-ethereum key-value database.
type Store struct {
	db ethdb.KeyValueStore
}

func New(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

// NewMemory returns a store that lives only in memory.
func NewMemory() *Store {
	return New(memorydb.New())
}

// Open opens or creates a LevelDB store at path.
func Open(path string, cache, handles int) (*Store, error) {
	db, err := leveldb.New(path, cache, handles, "zkledger/", false)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", path)
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update is everything one accepted transaction changed.
type Update struct {
	FirstLeaf    uint64
	Leaves       []types.Commitment
	Nullifiers   []types.Nullifier
	AddedUtxos   []*types.Utxo
	RemovedUtxos []types.UtxoID
	// full balances of every touched contract; an empty map deletes
	Balances map[types.ContractAddress]map[types.TokenType]*uint256.Int
}

// WriteUpdate writes u atomically.
func (s *Store) WriteUpdate(u *Update) error {
	batch := s.db.NewBatch()
	for i, cm := range u.Leaves {
		if err := batch.Put(commitmentKey(u.FirstLeaf+uint64(i)), cm[:]); err != nil {
			return err
		}
	}
	for _, nf := range u.Nullifiers {
		if err := batch.Put(nullifierKey(nf), present); err != nil {
			return err
		}
	}
	for _, id := range u.RemovedUtxos {
		if err := batch.Delete(utxoKey(id)); err != nil {
			return err
		}
	}
	for _, utxo := range u.AddedUtxos {
		bz, err := rlp.EncodeToBytes(utxo)
		if err != nil {
			return errors.Wrap(err, "store: encode utxo")
		}
		if err := batch.Put(utxoKey(utxo.ID()), bz); err != nil {
			return err
		}
	}
	for addr, bals := range u.Balances {
		if len(bals) == 0 {
			if err := batch.Delete(balanceKey(addr)); err != nil {
				return err
			}
			continue
		}
		entries := make([]balanceEntry, 0, len(bals))
		for _, tt := range effects.SortedTypes(bals) {
			entries = append(entries, balanceEntry{Type: tt, Value: bals[tt]})
		}
		bz, err := rlp.EncodeToBytes(entries)
		if err != nil {
			return errors.Wrap(err, "store: encode balances")
		}
		if err := batch.Put(balanceKey(addr), bz); err != nil {
			return err
		}
	}
	return batch.Write()
}

// WriteBlock records the root history after a block and the ledger meta.
func (s *Store) WriteBlock(root common.Hash, ts uint64, evicted []common.Hash, numLeaves uint64) error {
	batch := s.db.NewBatch()
	bz, err := rlp.EncodeToBytes(ts)
	if err != nil {
		return err
	}
	if err := batch.Put(rootKey(root), bz); err != nil {
		return err
	}
	for _, r := range evicted {
		if err := batch.Delete(rootKey(r)); err != nil {
			return err
		}
	}
	meta, err := rlp.EncodeToBytes(&Meta{Schema: SchemaVersion, Time: ts, NumLeaves: numLeaves})
	if err != nil {
		return err
	}
	if err := batch.Put(metaKey, meta); err != nil {
		return err
	}
	return batch.Write()
}

// ReadMeta returns nil if nothing was persisted yet.
func (s *Store) ReadMeta() (*Meta, error) {
	ok, err := s.db.Has(metaKey)
	if err != nil || !ok {
		return nil, err
	}
	bz, err := s.db.Get(metaKey)
	if err != nil {
		return nil, err
	}
	meta := &Meta{}
	if err := rlp.DecodeBytes(bz, meta); err != nil {
		return nil, errors.Wrap(err, "store: decode meta")
	}
	if meta.Schema != SchemaVersion {
		return nil, errors.Wrapf(ErrSchemaVersion, "got(%d)", meta.Schema)
	}
	return meta, nil
}

func (s *Store) iterate(prefix []byte, fn func(key, value []byte) error) error {
	it := s.db.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key()[len(prefix):], it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// LoadShielded rebuilds the shielded state.
func (s *Store) LoadShielded(hasher func() hash.Hash) (*shielded.State, error) {
	var leaves []types.Commitment
	err := s.iterate(commitmentPrefix, func(key, value []byte) error {
		if idx := binary.BigEndian.Uint64(key); idx != uint64(len(leaves)) {
			return errors.Errorf("store: commitment %d missing", len(leaves))
		}
		var cm types.Commitment
		copy(cm[:], value)
		leaves = append(leaves, cm)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var nullifiers []types.Nullifier
	err = s.iterate(nullifierPrefix, func(key, _ []byte) error {
		var nf types.Nullifier
		copy(nf[:], key)
		nullifiers = append(nullifiers, nf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var roots []shielded.RootEntry
	err = s.iterate(rootPrefix, func(key, value []byte) error {
		var ts uint64
		if err := rlp.DecodeBytes(value, &ts); err != nil {
			return errors.Wrap(err, "store: decode root time")
		}
		roots = append(roots, shielded.RootEntry{Root: common.BytesToHash(key), Time: ts})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shielded.Restore(hasher, leaves, nullifiers, roots), nil
}

// LoadUtxos rebuilds the UTXO set.
func (s *Store) LoadUtxos() (*unshielded.Set, error) {
	set := unshielded.NewSet()
	err := s.iterate(utxoPrefix, func(_, value []byte) error {
		utxo := &types.Utxo{}
		if err := rlp.DecodeBytes(value, utxo); err != nil {
			return errors.Wrap(err, "store: decode utxo")
		}
		return set.Insert(utxo)
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// LoadBalances rebuilds the contract balance store.
func (s *Store) LoadBalances() (*effects.Balances, error) {
	bals := effects.NewBalances()
	err := s.iterate(balancePrefix, func(key, value []byte) error {
		addr := types.ContractAddressFromBytes(key)
		var entries []balanceEntry
		if err := rlp.DecodeBytes(value, &entries); err != nil {
			return errors.Wrap(err, "store: decode balances")
		}
		for _, e := range entries {
			bals.Set(addr, e.Type, e.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bals, nil
}
