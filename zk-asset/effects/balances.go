package effects

import (
	"bytes"
	"slices"

	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/pkg/errors"
)

var ErrStaleChangeset = errors.New("effects: changeset was built against older balances")

// Balances is the contract balance store.
type Balances struct {
	m       map[types.ContractAddress]map[types.TokenType]*uint256.Int
	version uint64
}

func NewBalances() *Balances {
	return &Balances{m: make(map[types.ContractAddress]map[types.TokenType]*uint256.Int)}
}

// Get returns a copy of the balance of tt held by addr.
func (b *Balances) Get(addr types.ContractAddress, tt types.TokenType) *uint256.Int {
	if v, ok := b.m[addr][tt]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Of returns a copy of every non-zero balance held by addr.
func (b *Balances) Of(addr types.ContractAddress) map[types.TokenType]*uint256.Int {
	ret := make(map[types.TokenType]*uint256.Int, len(b.m[addr]))
	for tt, v := range b.m[addr] {
		ret[tt] = v.Clone()
	}
	return ret
}

// Contracts returns the contracts holding a balance, in byte order.
func (b *Balances) Contracts() []types.ContractAddress {
	ret := make([]types.ContractAddress, 0, len(b.m))
	for addr := range b.m {
		ret = append(ret, addr)
	}
	slices.SortFunc(ret, func(x, y types.ContractAddress) int { return bytes.Compare(x[:], y[:]) })
	return ret
}

// Set overwrites a balance outside of any transaction. It is used for
// genesis and restore.
func (b *Balances) Set(addr types.ContractAddress, tt types.TokenType, v *uint256.Int) {
	b.set(addr, tt, v)
	b.version++
}

func (b *Balances) set(addr types.ContractAddress, tt types.TokenType, v *uint256.Int) {
	if v.IsZero() {
		delete(b.m[addr], tt)
		if len(b.m[addr]) == 0 {
			delete(b.m, addr)
		}
		return
	}
	if b.m[addr] == nil {
		b.m[addr] = make(map[types.TokenType]*uint256.Int)
	}
	b.m[addr][tt] = v.Clone()
}

func (b *Balances) Begin() *Changeset {
	return &Changeset{
		base:    b,
		version: b.version,
		touched: make(map[types.ContractAddress]map[types.TokenType]*uint256.Int),
	}
}

func (b *Balances) Commit(cs *Changeset) error {
	if cs.base != b || cs.version != b.version {
		return ErrStaleChangeset
	}
	for addr, m := range cs.touched {
		for tt, v := range m {
			b.set(addr, tt, v)
		}
	}
	b.version++
	return nil
}

// Changeset is an overlay of Balances.
type Changeset struct {
	base    *Balances
	version uint64
	touched map[types.ContractAddress]map[types.TokenType]*uint256.Int
}

func (cs *Changeset) Get(addr types.ContractAddress, tt types.TokenType) *uint256.Int {
	if v, ok := cs.touched[addr][tt]; ok {
		return v.Clone()
	}
	return cs.base.Get(addr, tt)
}

func (cs *Changeset) put(addr types.ContractAddress, tt types.TokenType, v *uint256.Int) {
	if cs.touched[addr] == nil {
		cs.touched[addr] = make(map[types.TokenType]*uint256.Int)
	}
	cs.touched[addr][tt] = v
}

// Credit adds v to the balance; the result must stay within 128 bits.
func (cs *Changeset) Credit(seg types.Segment, addr types.ContractAddress, tt types.TokenType, v *uint256.Int) error {
	sum, ok := types.AddValue(cs.Get(addr, tt), v)
	if !ok {
		return &types.BalanceOverflowError{Segment: seg, Type: tt, Contract: &addr}
	}
	cs.put(addr, tt, sum)
	return nil
}

// Debit subtracts v from the balance, which must cover it.
func (cs *Changeset) Debit(addr types.ContractAddress, tt types.TokenType, v *uint256.Int) error {
	cur := cs.Get(addr, tt)
	rest, ok := types.SubValue(cur, v)
	if !ok {
		return &types.InsufficientBalanceError{Contract: addr, Type: tt, Balance: cur, Required: v.Clone()}
	}
	cs.put(addr, tt, rest)
	return nil
}

// Touched returns the contracts whose balances the changeset changed.
func (cs *Changeset) Touched() []types.ContractAddress {
	ret := make([]types.ContractAddress, 0, len(cs.touched))
	for addr := range cs.touched {
		ret = append(ret, addr)
	}
	slices.SortFunc(ret, func(x, y types.ContractAddress) int { return bytes.Compare(x[:], y[:]) })
	return ret
}

// Result returns the non-zero balances addr would hold after the changeset
// is committed.
func (cs *Changeset) Result(addr types.ContractAddress) map[types.TokenType]*uint256.Int {
	ret := cs.base.Of(addr)
	for tt, v := range cs.touched[addr] {
		if v.IsZero() {
			delete(ret, tt)
			continue
		}
		ret[tt] = v.Clone()
	}
	return ret
}
