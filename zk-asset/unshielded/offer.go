package unshielded

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/types"
)

// Output is a UTXO to be created. Its identity is assigned by the offer.
type Output struct {
	Value *uint256.Int
	Owner types.UserAddress
	Type  types.UnshieldedTokenType
}

// Offer spends Inputs and creates Outputs in one segment. Output i gets
// the identity (IntentHash, i).
type Offer struct {
	Segment    types.Segment
	IntentHash common.Hash
	Inputs     []*types.Utxo
	Outputs    []*Output
}

// Utxos returns the outputs with their identities assigned.
func (o *Offer) Utxos() []*types.Utxo {
	ret := make([]*types.Utxo, len(o.Outputs))
	for i, out := range o.Outputs {
		ret[i] = &types.Utxo{
			Value:      out.Value,
			Owner:      out.Owner,
			Type:       out.Type,
			IntentHash: o.IntentHash,
			OutputNo:   uint32(i),
		}
	}
	return ret
}

// Validate checks that every value fits in 128 bits.
func (o *Offer) Validate() error {
	for i, in := range o.Inputs {
		if !types.IsValue(in.Value) {
			return &types.MalformedError{What: "offer", Reason: fmt.Sprintf("input %d: value out of range", i)}
		}
	}
	for i, out := range o.Outputs {
		if !types.IsValue(out.Value) {
			return &types.MalformedError{What: "offer", Reason: fmt.Sprintf("output %d: value out of range", i)}
		}
	}
	return nil
}
