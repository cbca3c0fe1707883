package node

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/pkg/errors"
)

func (l *Ledger) Time() uint64 {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.time
}

func (l *Ledger) Root() common.Hash {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.shielded.Root()
}

// RootValid reports whether inputs may currently reference root.
func (l *Ledger) RootValid(root common.Hash) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	_, ok := l.shielded.RootTime(root)
	return ok
}

func (l *Ledger) HasCommitment(cm types.Commitment) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.shielded.HasCommitment(cm)
}

func (l *Ledger) HasNullifier(nf types.Nullifier) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.shielded.HasNullifier(nf)
}

// MerklePath returns the path of cm against the current root. The root is
// usable by inputs only once a block has been finalized over it.
func (l *Ledger) MerklePath(cm types.Commitment) (*shielded.MerklePath, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	idx, ok := l.shielded.CommitmentIndex(cm)
	if !ok {
		return nil, errors.Wrap(ErrUnknownCommitment, cm.String())
	}
	return l.shielded.MerklePath(idx)
}

func (l *Ledger) Utxo(id types.UtxoID) (*types.Utxo, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.utxos.Get(id)
}

func (l *Ledger) UtxosOf(owner types.UserAddress) []*types.Utxo {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.utxos.Owned(owner)
}

func (l *Ledger) Balance(addr types.ContractAddress, tt types.TokenType) *uint256.Int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.balances.Get(addr, tt)
}

func (l *Ledger) BalancesOf(addr types.ContractAddress) map[types.TokenType]*uint256.Int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.balances.Of(addr)
}
