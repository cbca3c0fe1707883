package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Error classes. Every concrete error below matches exactly one of them
// with errors.Is.
var (
	ErrMalformed     = errors.New("ledger: malformed input")
	ErrDoubleUse     = errors.New("ledger: double use")
	ErrConservation  = errors.New("ledger: value not conserved")
	ErrUnbackedClaim = errors.New("ledger: unbacked claim")
	ErrInvalidProof  = errors.New("ledger: invalid proof")
)

type MalformedError struct {
	What   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.What, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// MalformedBundleError reports a structural defect found before any
// cryptographic or set operation runs.
type MalformedBundleError struct {
	Segment Segment
	Field   string
	Index   int
	Reason  string
}

func (e *MalformedBundleError) Error() string {
	return fmt.Sprintf("malformed bundle (segment %d): %s[%d]: %s", e.Segment, e.Field, e.Index, e.Reason)
}

func (e *MalformedBundleError) Is(target error) bool { return target == ErrMalformed }

type UnknownRootError struct {
	Root common.Hash
}

func (e *UnknownRootError) Error() string {
	return fmt.Sprintf("unknown commitment tree root %x", e.Root)
}

func (e *UnknownRootError) Is(target error) bool { return target == ErrDoubleUse }

type DoubleSpendError struct {
	Nullifier Nullifier
}

func (e *DoubleSpendError) Error() string {
	return fmt.Sprintf("nullifier %x already spent", e.Nullifier)
}

func (e *DoubleSpendError) Is(target error) bool { return target == ErrDoubleUse }

type DuplicateCommitmentError struct {
	Commitment Commitment
}

func (e *DuplicateCommitmentError) Error() string {
	return fmt.Sprintf("commitment %x already present", e.Commitment)
}

func (e *DuplicateCommitmentError) Is(target error) bool { return target == ErrDoubleUse }

type MissingUtxoError struct {
	ID UtxoID
}

func (e *MissingUtxoError) Error() string {
	return fmt.Sprintf("utxo %s not found", e.ID)
}

func (e *MissingUtxoError) Is(target error) bool { return target == ErrDoubleUse }

type DuplicateUtxoError struct {
	ID UtxoID
}

func (e *DuplicateUtxoError) Error() string {
	return fmt.Sprintf("utxo %s already exists", e.ID)
}

func (e *DuplicateUtxoError) Is(target error) bool { return target == ErrDoubleUse }

// BalancingError reports value commitments that do not open to the declared deltas.
type BalancingError struct {
	Segment Segment
}

func (e *BalancingError) Error() string {
	return fmt.Sprintf("shielded bundle (segment %d) does not balance against its deltas", e.Segment)
}

func (e *BalancingError) Is(target error) bool { return target == ErrConservation }

type InsufficientBalanceError struct {
	Contract ContractAddress
	Type     TokenType
	Balance  *uint256.Int
	Required *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("contract %s: insufficient %s balance: have(%s), need(%s)",
		e.Contract, e.Type, ValueOrZero(e.Balance).Dec(), ValueOrZero(e.Required).Dec())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrConservation }

// BalanceOverflowError reports an accumulator leaving its 128-bit range.
// Contract is set when the overflow happened in a contract balance.
type BalanceOverflowError struct {
	Segment  Segment
	Type     TokenType
	Contract *ContractAddress
}

func (e *BalanceOverflowError) Error() string {
	if e.Contract != nil {
		return fmt.Sprintf("contract %s: %s balance overflow", e.Contract, e.Type)
	}
	return fmt.Sprintf("segment %d: %s balance overflow", e.Segment, e.Type)
}

func (e *BalanceOverflowError) Is(target error) bool { return target == ErrConservation }

type BalanceMismatchError struct {
	Segment   Segment
	Type      TokenType
	Imbalance *big.Int
}

func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("segment %d: %s does not balance: imbalance(%s)", e.Segment, e.Type, e.Imbalance)
}

func (e *BalanceMismatchError) Is(target error) bool { return target == ErrConservation }

type ClaimKind string

const (
	ClaimUnshieldedSpend ClaimKind = "unshielded spend"
	ClaimNullifier       ClaimKind = "nullifier"
	ClaimShieldedReceive ClaimKind = "shielded receive"
	ClaimShieldedSpend   ClaimKind = "shielded spend"
	ClaimContractCall    ClaimKind = "contract call"
	ClaimContractInput   ClaimKind = "contract-owned input"
	ClaimContractOutput  ClaimKind = "contract-owned output"
)

type UnbackedClaimError struct {
	Contract ContractAddress
	Kind     ClaimKind
	Claim    string
}

func (e *UnbackedClaimError) Error() string {
	return fmt.Sprintf("contract %s: unbacked %s claim: %s", e.Contract, e.Kind, e.Claim)
}

func (e *UnbackedClaimError) Is(target error) bool { return target == ErrUnbackedClaim }

type InvalidProofError struct {
	Segment Segment
	Kind    string
	Index   int
}

func (e *InvalidProofError) Error() string {
	return fmt.Sprintf("segment %d: invalid %s proof at index %d", e.Segment, e.Kind, e.Index)
}

func (e *InvalidProofError) Is(target error) bool { return target == ErrInvalidProof }
