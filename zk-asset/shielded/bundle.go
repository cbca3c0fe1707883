package shielded

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/types"
)

// Delta is the publicly declared net value of one token type in a bundle.
type Delta struct {
	Type  types.ShieldedTokenType
	Value *big.Int
}

// Input spends a coin that is a leaf of the tree at MerkleRoot.
// Contract is set when the coin is owned by a contract.
type Input struct {
	Nullifier       types.Nullifier
	MerkleRoot      common.Hash
	ValueCommitment crypto.ValueCommitment
	Contract        *types.ContractAddress
	Proof           []byte
}

type Output struct {
	Commitment      types.Commitment
	ValueCommitment crypto.ValueCommitment
	Contract        *types.ContractAddress
	Proof           []byte
}

// Transient is a coin created and spent in the same transaction. Its input
// side is proven against the one-leaf tree of its own commitment.
type Transient struct {
	Nullifier             types.Nullifier
	Commitment            types.Commitment
	InputRoot             common.Hash
	ValueCommitmentInput  crypto.ValueCommitment
	ValueCommitmentOutput crypto.ValueCommitment
	Contract              *types.ContractAddress
	InputProof            []byte
	OutputProof           []byte
}

// Bundle is the shielded part of one segment of a transaction.
type Bundle struct {
	Segment           types.Segment
	Inputs            []*Input
	Outputs           []*Output
	Transients        []*Transient
	Deltas            []Delta
	BindingRandomness *big.Int
}

// Nullifiers returns the nullifiers of inputs followed by those of transients.
func (b *Bundle) Nullifiers() []types.Nullifier {
	ret := make([]types.Nullifier, 0, len(b.Inputs)+len(b.Transients))
	for _, in := range b.Inputs {
		ret = append(ret, in.Nullifier)
	}
	for _, tr := range b.Transients {
		ret = append(ret, tr.Nullifier)
	}
	return ret
}

// Commitments returns the commitments of outputs followed by those of transients.
func (b *Bundle) Commitments() []types.Commitment {
	ret := make([]types.Commitment, 0, len(b.Outputs)+len(b.Transients))
	for _, out := range b.Outputs {
		ret = append(ret, out.Commitment)
	}
	for _, tr := range b.Transients {
		ret = append(ret, tr.Commitment)
	}
	return ret
}

// DeltaOf returns the declared delta of tt, or zero.
func (b *Bundle) DeltaOf(tt types.ShieldedTokenType) *big.Int {
	for _, d := range b.Deltas {
		if d.Type == tt {
			return new(big.Int).Set(d.Value)
		}
	}
	return new(big.Int)
}
