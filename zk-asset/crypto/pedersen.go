package crypto

import (
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/types"
)

const (
	ValueBaseTag    = "zkledger:vc_base"
	tagBlindingBase = "zkledger:vc_blind"

	DefaultBaseCacheSize = 1024

	// ValueBaseTries bounds the try-and-increment search of a value base.
	ValueBaseTries = 64
)

var ErrNotOnCurve = errors.New("point is not on curve")

// ValueCommitment is a homomorphic commitment to a signed value under a
// (token type, segment) base.
type ValueCommitment struct {
	p tedwards.PointAffine
}

func identity() ValueCommitment {
	var c ValueCommitment
	c.p.X.SetZero()
	c.p.Y.SetOne()
	return c
}

// ValueCommitmentFromBytes decodes a compressed point and checks that it is
// on the curve.
func ValueCommitmentFromBytes(bz []byte) (ValueCommitment, error) {
	var c ValueCommitment
	if _, err := c.p.SetBytes(bz); err != nil {
		return c, err
	}
	if !c.p.IsOnCurve() {
		return c, ErrNotOnCurve
	}
	return c, nil
}

func (c ValueCommitment) Bytes() [32]byte {
	return c.p.Bytes()
}

func (c ValueCommitment) String() string {
	bz := c.p.Bytes()
	return hex.EncodeToString(bz[:])
}

func (c ValueCommitment) Add(o ValueCommitment) ValueCommitment {
	var r ValueCommitment
	r.p.Add(&c.p, &o.p)
	return r
}

func (c ValueCommitment) Sub(o ValueCommitment) ValueCommitment {
	var neg tedwards.PointAffine
	neg.Neg(&o.p)
	var r ValueCommitment
	r.p.Add(&c.p, &neg)
	return r
}

// IsValid reports whether c is a point of the prime-order subgroup. The
// zero value is not.
func (c ValueCommitment) IsValid() bool {
	if !c.p.IsOnCurve() {
		return false
	}
	params := tedwards.GetEdwardsCurve()
	var q tedwards.PointAffine
	q.ScalarMultiplication(&c.p, &params.Order)
	return q.IsZero()
}

func (c ValueCommitment) Equal(o ValueCommitment) bool {
	return c.p.Equal(&o.p)
}

// Point exposes the affine coordinates for circuit witnesses.
func (c ValueCommitment) Point() tedwards.PointAffine {
	return c.p
}

// Scheme is a homomorphic commitment scheme over signed values.
type Scheme interface {
	Commit(tt types.ShieldedTokenType, seg types.Segment, value, blinding *big.Int) ValueCommitment
	Combine(pos, neg []ValueCommitment) ValueCommitment
	Identity() ValueCommitment
}

type baseKey struct {
	Type    types.ShieldedTokenType
	Segment types.Segment
}

// Pedersen commits as value*G(type, segment) + blinding*H on the BN254
// twisted Edwards curve. Value bases are derived by hashing to the curve and
// are cached.
type Pedersen struct {
	params   tedwards.CurveParams
	blinding tedwards.PointAffine
	bases    *lru.Cache[baseKey, tedwards.PointAffine]
}

var _ Scheme = (*Pedersen)(nil)

func NewPedersen(cacheSize int) (*Pedersen, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultBaseCacheSize
	}
	cache, err := lru.New[baseKey, tedwards.PointAffine](cacheSize)
	if err != nil {
		return nil, err
	}
	ret := &Pedersen{
		params: tedwards.GetEdwardsCurve(),
		bases:  cache,
	}
	ret.blinding = BlindingBase()
	return ret, nil
}

// BlindingBase returns the generator H blinding factors are committed under.
func BlindingBase() tedwards.PointAffine {
	return HashToCurve(tagBlindingBase)
}

// Order returns the order of the prime subgroup the bases live in.
func (ped *Pedersen) Order() *big.Int {
	return new(big.Int).Set(&ped.params.Order)
}

// ValueBase returns the generator values of tt in segment seg are committed under.
func (ped *Pedersen) ValueBase(tt types.ShieldedTokenType, seg types.Segment) tedwards.PointAffine {
	key := baseKey{Type: tt, Segment: seg}
	if p, ok := ped.bases.Get(key); ok {
		return p
	}
	p, _ := DeriveValueBase(tt, seg)
	ped.bases.Add(key, p)
	return p
}

func (ped *Pedersen) Commit(tt types.ShieldedTokenType, seg types.Segment, value, blinding *big.Int) ValueCommitment {
	g := ped.ValueBase(tt, seg)

	var vG, rH tedwards.PointAffine
	vG.ScalarMultiplication(&g, ped.reduce(value))
	rH.ScalarMultiplication(&ped.blinding, ped.reduce(blinding))

	var c ValueCommitment
	c.p.Add(&vG, &rH)
	return c
}

func (ped *Pedersen) Combine(pos, neg []ValueCommitment) ValueCommitment {
	acc := identity()
	for _, c := range pos {
		acc = acc.Add(c)
	}
	for _, c := range neg {
		acc = acc.Sub(c)
	}
	return acc
}

func (ped *Pedersen) Identity() ValueCommitment {
	return identity()
}

// RandomBlinding draws a uniform scalar of the subgroup order.
func (ped *Pedersen) RandomBlinding() (*big.Int, error) {
	return crand.Int(crand.Reader, &ped.params.Order)
}

// reduce maps a signed scalar into [0, order).
func (ped *Pedersen) reduce(s *big.Int) *big.Int {
	if s == nil {
		return new(big.Int)
	}
	return new(big.Int).Mod(s, &ped.params.Order)
}

// HashToCurve maps the tagged inputs to a point of the prime-order subgroup
// by try-and-increment over BLAKE2s, then clears the cofactor.
func HashToCurve(tag string, ins ...[]byte) tedwards.PointAffine {
	params := tedwards.GetEdwardsCurve()
	cofactor := params.Cofactor.BigInt(new(big.Int))

	msg := make([][]byte, len(ins)+1)
	copy(msg, ins)
	var ctr [4]byte
	msg[len(ins)] = ctr[:]
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		bz := utils.KeyedHash(tag, msg...)

		var p tedwards.PointAffine
		if _, err := p.SetBytes(bz); err != nil || !p.IsOnCurve() {
			continue
		}
		p.ScalarMultiplication(&p, cofactor)
		if p.IsZero() {
			continue
		}
		return p
	}
}

// ValueBaseHint is the witness a circuit needs to re-derive a value base
// from its token type and segment. X is the even x coordinate of the
// accepted candidate. For every rejected counter c, NonResidues[c] squared
// equals NonResidue() times the candidate's x^2, which proves that x^2 had
// no square root.
type ValueBaseHint struct {
	Counter     uint64
	X           fr.Element
	NonResidues [ValueBaseTries]fr.Element
}

var nonResidue = func() fr.Element {
	var n fr.Element
	for i := uint64(2); ; i++ {
		n.SetUint64(i)
		if n.Legendre() == -1 {
			return n
		}
	}
}()

// NonResidue returns the smallest quadratic non-residue of the scalar field.
func NonResidue() fr.Element {
	return nonResidue
}

// ValueBaseY returns the candidate y coordinate of the value base of
// (tt, seg) for counter ctr.
func ValueBaseY(tt types.ShieldedTokenType, seg types.Segment, ctr uint64) fr.Element {
	var segBz [2]byte
	binary.BigEndian.PutUint16(segBz[:], uint16(seg))
	var y fr.Element
	y.SetBytes(utils.MiMCHash([]byte(ValueBaseTag), tt[:], segBz[:], []byte{byte(ctr)}))
	return y
}

// ValueBaseX2 returns x^2 = (1 - y^2) / (A - D*y^2) of the curve point with
// ordinate y. ok is false when the denominator vanishes.
func ValueBaseX2(y fr.Element) (x2 fr.Element, ok bool) {
	params := tedwards.GetEdwardsCurve()
	var y2, num, den fr.Element
	y2.Square(&y)
	num.SetOne()
	num.Sub(&num, &y2)
	den.Mul(&params.D, &y2)
	den.Sub(&params.A, &den)
	if den.IsZero() {
		return x2, false
	}
	x2.Div(&num, &den)
	return x2, true
}

// DeriveValueBase maps (tt, seg) to a point of the prime-order subgroup.
// Candidates y = MiMC(tag, tt, seg, ctr) are tried in order and the first
// one with a square x^2 is taken with its even root, then the cofactor is
// cleared. The derivation only uses field arithmetic and MiMC so that the
// spend and output circuits can repeat it from the private token type.
func DeriveValueBase(tt types.ShieldedTokenType, seg types.Segment) (tedwards.PointAffine, *ValueBaseHint) {
	params := tedwards.GetEdwardsCurve()
	cofactor := params.Cofactor.BigInt(new(big.Int))

	hint := &ValueBaseHint{}
	for ctr := uint64(0); ctr < ValueBaseTries; ctr++ {
		y := ValueBaseY(tt, seg, ctr)
		x2, ok := ValueBaseX2(y)
		if !ok {
			panic("value base candidate has no abscissa")
		}
		if x2.IsZero() || x2.Legendre() != 1 {
			var nq fr.Element
			nq.Mul(&nonResidue, &x2)
			hint.NonResidues[ctr].Sqrt(&nq)
			continue
		}

		var x fr.Element
		x.Sqrt(&x2)
		if x.BigInt(new(big.Int)).Bit(0) == 1 {
			x.Neg(&x)
		}
		p := tedwards.NewPointAffine(x, y)
		p.ScalarMultiplication(&p, cofactor)
		if p.IsZero() {
			panic("value base is the identity")
		}
		hint.Counter = ctr
		hint.X = x
		return p, hint
	}
	panic("value base search exhausted")
}
