package types

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/utils"
)

// Domain tags for coin hashing. Commitments, nullifiers, public keys and
// nonce evolution never share a tag.
var (
	TagCommitment = utils.FieldElement([]byte("zkledger:cm"))
	TagNullifier  = utils.FieldElement([]byte("zkledger:nf"))
	TagPublicKey  = utils.FieldElement([]byte("zkledger:pk"))
	TagEvolve     = utils.FieldElement([]byte("zkledger:evolve"))
)

// Commitment is the published form of a shielded output.
type Commitment [32]byte

// Nullifier is the published form of a spent shielded coin.
type Nullifier [32]byte

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }
func (n Nullifier) String() string  { return hex.EncodeToString(n[:]) }

// CoinSecretKey is the spending secret of a shielded coin holder.
type CoinSecretKey [32]byte

// CoinPublicKey is the recipient identity a user coin commitment binds to.
type CoinPublicKey [32]byte

func (sk CoinSecretKey) PublicKey() CoinPublicKey {
	var pk CoinPublicKey
	copy(pk[:], utils.MiMCHash(TagPublicKey, sk[:]))
	return pk
}

// CoinInfo is a shielded coin. It never reaches the ledger directly; only
// its commitment and nullifier do.
type CoinInfo struct {
	Nonce common.Hash
	Type  ShieldedTokenType
	Value *uint256.Int
}

func NewCoin(tt ShieldedTokenType, value *uint256.Int) *CoinInfo {
	return &CoinInfo{
		Nonce: common.BytesToHash(RandBytes(32)),
		Type:  tt,
		Value: value,
	}
}

func (c *CoinInfo) valueBytes() []byte {
	v := ValueOrZero(c.Value).Bytes32()
	return v[:]
}

// CommitmentTo binds the coin to a recipient, which is a coin public key for
// users and the contract address for contracts.
func (c *CoinInfo) CommitmentTo(r Recipient) Commitment {
	kind := []byte{0}
	if r.IsContract {
		kind[0] = 1
	}
	var cm Commitment
	copy(cm[:], utils.MiMCHash(TagCommitment, c.Nonce[:], c.Type[:], c.valueBytes(), kind, r.ID[:]))
	return cm
}

// Commitment commits the coin to a user holding sk's public key.
func (c *CoinInfo) Commitment(pk CoinPublicKey) Commitment {
	return c.CommitmentTo(Recipient{ID: pk})
}

// ContractCommitment commits the coin to a contract.
func (c *CoinInfo) ContractCommitment(addr ContractAddress) Commitment {
	return c.CommitmentTo(ContractRecipient(addr))
}

// Nullifier binds the coin to the spender secret. For contract-owned coins
// the contract address takes the place of the secret.
func (c *CoinInfo) Nullifier(secret [32]byte) Nullifier {
	var nf Nullifier
	copy(nf[:], utils.MiMCHash(TagNullifier, c.Nonce[:], c.Type[:], c.valueBytes(), secret[:]))
	return nf
}

// Evolve derives a child coin with the same type and value. Children
// evolved with the same domain separator share a nonce, so every output
// must use its own separator.
func (c *CoinInfo) Evolve(domainSep common.Hash) *CoinInfo {
	return &CoinInfo{
		Nonce: common.BytesToHash(utils.MiMCHash(TagEvolve, domainSep[:], c.Nonce[:])),
		Type:  c.Type,
		Value: c.Value,
	}
}

// Split evolves the coin into coins carrying the given values, using the
// output index as domain separator.
func (c *CoinInfo) Split(values ...*uint256.Int) []*CoinInfo {
	out := make([]*CoinInfo, len(values))
	for i, v := range values {
		child := c.Evolve(common.BigToHash(big.NewInt(int64(i))))
		child.Value = v
		out[i] = child
	}
	return out
}
