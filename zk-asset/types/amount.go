package types

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Segment identifies a fee segment of a transaction. Segment 0 is the
// guaranteed segment.
type Segment uint16

var (
	// MaxValue is the largest coin or balance value, 2^128-1.
	MaxValue = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	maxDelta = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minDelta = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// IsValue reports whether v fits in 128 unsigned bits.
func IsValue(v *uint256.Int) bool {
	return v != nil && v.BitLen() <= 128
}

// InDeltaRange reports whether d fits in a signed 128-bit integer.
func InDeltaRange(d *big.Int) bool {
	return d != nil && d.Cmp(minDelta) >= 0 && d.Cmp(maxDelta) <= 0
}

// AddValue returns a+b, or false if the sum exceeds MaxValue.
func AddValue(a, b *uint256.Int) (*uint256.Int, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || sum.Gt(MaxValue) {
		return nil, false
	}
	return sum, true
}

// SubValue returns a-b, or false if b > a.
func SubValue(a, b *uint256.Int) (*uint256.Int, bool) {
	if b.Gt(a) {
		return nil, false
	}
	return new(uint256.Int).Sub(a, b), true
}

// ValueOrZero returns v, or a fresh zero if v is nil.
func ValueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
