package balancer

import (
	"fmt"
	"math/big"

	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
)

// CheckStructure rejects bundles whose shape is wrong before any curve
// arithmetic runs: deltas must be sorted by type, unique, non-zero and in
// the signed 128-bit range, every value commitment must be a curve point
// and the binding randomness must be present.
func CheckStructure(b *shielded.Bundle) error {
	malformed := func(field string, idx int, format string, args ...any) error {
		return &types.MalformedBundleError{
			Segment: b.Segment,
			Field:   field,
			Index:   idx,
			Reason:  fmt.Sprintf(format, args...),
		}
	}

	for i, d := range b.Deltas {
		if d.Value == nil || d.Value.Sign() == 0 {
			return malformed("deltas", i, "zero delta for %s", d.Type)
		}
		if !types.InDeltaRange(d.Value) {
			return malformed("deltas", i, "delta %s out of range", d.Value)
		}
		if i > 0 {
			switch c := b.Deltas[i-1].Type.TokenType().Compare(d.Type.TokenType()); {
			case c == 0:
				return malformed("deltas", i, "duplicate delta for %s", d.Type)
			case c > 0:
				return malformed("deltas", i, "deltas not sorted")
			}
		}
	}

	for i, in := range b.Inputs {
		if !in.ValueCommitment.IsValid() {
			return malformed("inputs", i, "invalid value commitment")
		}
	}
	for i, out := range b.Outputs {
		if !out.ValueCommitment.IsValid() {
			return malformed("outputs", i, "invalid value commitment")
		}
	}
	for i, tr := range b.Transients {
		if !tr.ValueCommitmentInput.IsValid() || !tr.ValueCommitmentOutput.IsValid() {
			return malformed("transients", i, "invalid value commitment")
		}
	}
	if b.BindingRandomness == nil {
		return malformed("binding_randomness", 0, "missing")
	}
	return nil
}

// Check verifies that the value commitments of b open to its declared
// deltas under the revealed binding randomness:
//
//	Σin + Σtransient_in - Σout - Σtransient_out - Σ Commit(Δ, 0) == Commit(0, binding)
//
// CheckStructure must have accepted b.
func Check(scheme crypto.Scheme, b *shielded.Bundle) error {
	pos := make([]crypto.ValueCommitment, 0, len(b.Inputs)+len(b.Transients))
	neg := make([]crypto.ValueCommitment, 0, len(b.Outputs)+len(b.Transients)+len(b.Deltas))

	for _, in := range b.Inputs {
		pos = append(pos, in.ValueCommitment)
	}
	for _, tr := range b.Transients {
		pos = append(pos, tr.ValueCommitmentInput)
		neg = append(neg, tr.ValueCommitmentOutput)
	}
	for _, out := range b.Outputs {
		neg = append(neg, out.ValueCommitment)
	}
	zero := new(big.Int)
	for _, d := range b.Deltas {
		neg = append(neg, scheme.Commit(d.Type, b.Segment, d.Value, zero))
	}

	// the binding commitment is committed under an arbitrary value base,
	// since its value is zero
	var anyType types.ShieldedTokenType
	expected := scheme.Commit(anyType, b.Segment, zero, b.BindingRandomness)
	if !scheme.Combine(pos, neg).Equal(expected) {
		return &types.BalancingError{Segment: b.Segment}
	}
	return nil
}

// Validate runs CheckStructure followed by Check.
func Validate(scheme crypto.Scheme, b *shielded.Bundle) error {
	if err := CheckStructure(b); err != nil {
		return err
	}
	return Check(scheme, b)
}
