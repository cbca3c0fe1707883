package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// UtxoID is the global identity of an unshielded output.
type UtxoID struct {
	IntentHash common.Hash
	OutputNo   uint32
}

func (id UtxoID) String() string {
	return fmt.Sprintf("%x#%d", id.IntentHash[:8], id.OutputNo)
}

// Utxo is an unspent unshielded output. It is created once and destroyed
// once; it is never mutated.
type Utxo struct {
	Value      *uint256.Int
	Owner      UserAddress
	Type       UnshieldedTokenType
	IntentHash common.Hash
	OutputNo   uint32
}

func (u *Utxo) ID() UtxoID {
	return UtxoID{IntentHash: u.IntentHash, OutputNo: u.OutputNo}
}

// Equal reports whether both outputs carry identical data.
func (u *Utxo) Equal(o *Utxo) bool {
	return u.ID() == o.ID() &&
		u.Owner == o.Owner &&
		u.Type == o.Type &&
		ValueOrZero(u.Value).Eq(ValueOrZero(o.Value))
}
