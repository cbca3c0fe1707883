package effects

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/types"
)

// SpendKey is the target of a claimed unshielded spend.
type SpendKey struct {
	Type      types.TokenType
	Recipient types.Recipient
}

func (k SpendKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.Type, k.Recipient)
}

func (k SpendKey) Compare(o SpendKey) int {
	if c := k.Type.Compare(o.Type); c != 0 {
		return c
	}
	if k.Recipient.IsContract != o.Recipient.IsContract {
		if !k.Recipient.IsContract {
			return -1
		}
		return 1
	}
	return bytes.Compare(k.Recipient.ID[:], o.Recipient.ID[:])
}

// ClaimedCall names a contract entry point called by another contract.
type ClaimedCall struct {
	Address    types.ContractAddress
	EntryPoint string
}

// Effects are the token movements a contract call declares. They are
// checked against the transaction before they touch any balance.
type Effects struct {
	ClaimedNullifiers       []types.Nullifier
	ClaimedShieldedReceives []types.Commitment
	ClaimedShieldedSpends   []types.Commitment
	ClaimedContractCalls    []ClaimedCall

	// mints are keyed by the domain separator the token type is derived with
	ShieldedMints   map[common.Hash]uint64
	UnshieldedMints map[common.Hash]uint64

	UnshieldedInputs        map[types.TokenType]*uint256.Int
	UnshieldedOutputs       map[types.TokenType]*uint256.Int
	ClaimedUnshieldedSpends map[SpendKey]*uint256.Int
}

// Call is one contract call of a transaction.
type Call struct {
	Address    types.ContractAddress
	EntryPoint string
	Segment    types.Segment
	Effects    Effects
}

// Mint is a mint resolved to its derived token type.
type Mint struct {
	Type   types.TokenType
	Amount *uint256.Int
}

// Mints returns the shielded then the unshielded mints of c, each group in
// domain separator order.
func (c *Call) Mints() []Mint {
	var ret []Mint
	for _, sep := range sortedSeps(c.Effects.ShieldedMints) {
		ret = append(ret, Mint{
			Type:   types.CustomShieldedTokenType(c.Address, sep).TokenType(),
			Amount: uint256.NewInt(c.Effects.ShieldedMints[sep]),
		})
	}
	for _, sep := range sortedSeps(c.Effects.UnshieldedMints) {
		ret = append(ret, Mint{
			Type:   types.CustomUnshieldedTokenType(c.Address, sep).TokenType(),
			Amount: uint256.NewInt(c.Effects.UnshieldedMints[sep]),
		})
	}
	return ret
}

func sortedSeps(m map[common.Hash]uint64) []common.Hash {
	seps := make([]common.Hash, 0, len(m))
	for sep := range m {
		seps = append(seps, sep)
	}
	slices.SortFunc(seps, func(a, b common.Hash) int { return bytes.Compare(a[:], b[:]) })
	return seps
}

// SortedTypes returns the keys of m in token type order.
func SortedTypes(m map[types.TokenType]*uint256.Int) []types.TokenType {
	tts := make([]types.TokenType, 0, len(m))
	for tt := range m {
		tts = append(tts, tt)
	}
	types.SortTokenTypes(tts)
	return tts
}

func sortedSpendKeys(m map[SpendKey]*uint256.Int) []SpendKey {
	keys := make([]SpendKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, SpendKey.Compare)
	return keys
}

// Validate checks that every declared token type is well formed and every
// declared amount fits in 128 bits.
func (c *Call) Validate() error {
	check := func(field string, tt types.TokenType, v *uint256.Int) error {
		if err := tt.Validate(); err != nil {
			return &types.MalformedError{
				What:   "effects",
				Reason: fmt.Sprintf("contract %s: %s: %v", c.Address, field, err),
			}
		}
		if !types.IsValue(v) {
			return &types.MalformedError{
				What:   "effects",
				Reason: fmt.Sprintf("contract %s: %s amount out of range", c.Address, field),
			}
		}
		return nil
	}
	for _, tt := range SortedTypes(c.Effects.UnshieldedInputs) {
		if err := check("unshielded input", tt, c.Effects.UnshieldedInputs[tt]); err != nil {
			return err
		}
	}
	for _, tt := range SortedTypes(c.Effects.UnshieldedOutputs) {
		if err := check("unshielded output", tt, c.Effects.UnshieldedOutputs[tt]); err != nil {
			return err
		}
	}
	for _, k := range sortedSpendKeys(c.Effects.ClaimedUnshieldedSpends) {
		if err := check("claimed unshielded spend", k.Type, c.Effects.ClaimedUnshieldedSpends[k]); err != nil {
			return err
		}
	}
	return nil
}
