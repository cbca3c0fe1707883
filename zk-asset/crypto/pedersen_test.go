package crypto

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/stretchr/testify/require"
)

func TestHashToCurve(t *testing.T) {
	p0 := HashToCurve(tagBlindingBase, []byte("a"))
	p1 := HashToCurve(tagBlindingBase, []byte("a"))
	p2 := HashToCurve(tagBlindingBase, []byte("b"))

	require.True(t, p0.IsOnCurve())
	require.False(t, p0.IsZero())
	require.True(t, p0.Equal(&p1))
	require.False(t, p0.Equal(&p2))
}

func TestPedersenHomomorphism(t *testing.T) {
	ped, err := NewPedersen(16)
	require.NoError(t, err)

	tt := types.ShieldedTokenType(types.RandHash())
	r0, err := ped.RandomBlinding()
	require.NoError(t, err)
	r1, err := ped.RandomBlinding()
	require.NoError(t, err)

	c0 := ped.Commit(tt, 0, big.NewInt(60), r0)
	c1 := ped.Commit(tt, 0, big.NewInt(40), r1)
	sum := ped.Commit(tt, 0, big.NewInt(100), new(big.Int).Add(r0, r1))
	require.True(t, ped.Combine([]ValueCommitment{c0, c1}, nil).Equal(sum))

	// c0 + c1 - sum opens to (0, 0)
	require.True(t, ped.Combine([]ValueCommitment{c0, c1}, []ValueCommitment{sum}).Equal(ped.Identity()))

	// negative values reduce modulo the group order
	neg := ped.Commit(tt, 0, big.NewInt(-40), new(big.Int).Neg(r1))
	require.True(t, ped.Combine([]ValueCommitment{c1, neg}, nil).Equal(ped.Identity()))
}

func TestPedersenBasesAreIndependent(t *testing.T) {
	ped, err := NewPedersen(0)
	require.NoError(t, err)

	a := types.ShieldedTokenType(types.RandHash())
	b := types.ShieldedTokenType(types.RandHash())
	r := big.NewInt(7)

	require.False(t, ped.Commit(a, 0, big.NewInt(1), r).Equal(ped.Commit(b, 0, big.NewInt(1), r)))
	require.False(t, ped.Commit(a, 0, big.NewInt(1), r).Equal(ped.Commit(a, 1, big.NewInt(1), r)))

	// cached and fresh bases agree
	g0 := ped.ValueBase(a, 3)
	g1 := ped.ValueBase(a, 3)
	require.True(t, g0.Equal(&g1))
}

func TestValueCommitmentCodec(t *testing.T) {
	ped, err := NewPedersen(0)
	require.NoError(t, err)

	c := ped.Commit(types.ShieldedTokenType(types.RandHash()), 0, big.NewInt(12345), big.NewInt(99))
	bz := c.Bytes()

	decoded, err := ValueCommitmentFromBytes(bz[:])
	require.NoError(t, err)
	require.True(t, c.Equal(decoded))

	_, err = ValueCommitmentFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDeriveValueBase(t *testing.T) {
	tt := types.ShieldedTokenType(types.RandHash())
	base, hint := DeriveValueBase(tt, 5)

	again, _ := DeriveValueBase(tt, 5)
	require.True(t, base.Equal(&again))
	require.True(t, ValueCommitment{p: base}.IsValid())
	require.False(t, base.IsZero())

	// the hint replays the derivation
	n := NonResidue()
	require.Equal(t, -1, n.Legendre())
	for c := uint64(0); c < hint.Counter; c++ {
		x2, ok := ValueBaseX2(ValueBaseY(tt, 5, c))
		require.True(t, ok)
		var lhs, rhs fr.Element
		lhs.Square(&hint.NonResidues[c])
		rhs.Mul(&n, &x2)
		require.True(t, lhs.Equal(&rhs))
	}
	y := ValueBaseY(tt, 5, hint.Counter)
	x2, ok := ValueBaseX2(y)
	require.True(t, ok)
	var sq fr.Element
	sq.Square(&hint.X)
	require.True(t, sq.Equal(&x2))
	require.Zero(t, hint.X.BigInt(new(big.Int)).Bit(0))

	p := tedwards.NewPointAffine(hint.X, y)
	require.True(t, p.IsOnCurve())
	p.ScalarMultiplication(&p, big.NewInt(8))
	require.True(t, p.Equal(&base))
}

func TestValueCommitmentSubgroup(t *testing.T) {
	ped, err := NewPedersen(0)
	require.NoError(t, err)
	c := ped.Commit(types.ShieldedTokenType(types.RandHash()), 0, big.NewInt(3), big.NewInt(4))
	require.True(t, c.IsValid())
	require.False(t, ValueCommitment{}.IsValid())

	// (0, -1) has order two and lies on the curve
	var two tedwards.PointAffine
	two.Y.SetOne()
	two.Y.Neg(&two.Y)
	require.True(t, two.IsOnCurve())

	torsion := ValueCommitment{p: two}
	require.False(t, torsion.IsValid())
	require.False(t, c.Add(torsion).IsValid())

	// decoding accepts it, validation does not
	bz := two.Bytes()
	decoded, err := ValueCommitmentFromBytes(bz[:])
	require.NoError(t, err)
	require.False(t, decoded.IsValid())
}
