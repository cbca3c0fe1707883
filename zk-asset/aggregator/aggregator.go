package aggregator

import (
	"math/big"
	"slices"

	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/effects"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
)

// Key is one accumulator of the aggregate.
type Key struct {
	Segment types.Segment
	Type    types.TokenType
}

func (k Key) Compare(o Key) int {
	if k.Segment != o.Segment {
		if k.Segment < o.Segment {
			return -1
		}
		return 1
	}
	return k.Type.Compare(o.Type)
}

// Balance is the signed net value movement of a transaction per segment
// and token type. Every accumulator stays within the signed 128-bit range.
type Balance struct {
	m map[Key]*big.Int
}

func New() *Balance {
	return &Balance{m: make(map[Key]*big.Int)}
}

func (b *Balance) Get(k Key) *big.Int {
	if v, ok := b.m[k]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Keys returns the keys with an accumulator, in order.
func (b *Balance) Keys() []Key {
	keys := make([]Key, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}

// Add accumulates v under k.
func (b *Balance) Add(k Key, v *big.Int) error {
	cur, ok := b.m[k]
	if !ok {
		cur = new(big.Int)
	}
	sum := new(big.Int).Add(cur, v)
	if !types.InDeltaRange(sum) {
		return &types.BalanceOverflowError{Segment: k.Segment, Type: k.Type}
	}
	b.m[k] = sum
	return nil
}

func (b *Balance) addValue(k Key, v *uint256.Int, negate bool) error {
	bv := types.ValueOrZero(v).ToBig()
	if negate {
		bv.Neg(bv)
	}
	return b.Add(k, bv)
}

// AddBundle adds the declared deltas of a shielded bundle.
func (b *Balance) AddBundle(bundle *shielded.Bundle) error {
	for _, d := range bundle.Deltas {
		if err := b.Add(Key{Segment: bundle.Segment, Type: d.Type.TokenType()}, d.Value); err != nil {
			return err
		}
	}
	return nil
}

// AddOffer adds offer inputs and subtracts offer outputs.
func (b *Balance) AddOffer(o *unshielded.Offer) error {
	for _, in := range o.Inputs {
		if err := b.addValue(Key{Segment: o.Segment, Type: in.Type.TokenType()}, in.Value, false); err != nil {
			return err
		}
	}
	for _, out := range o.Outputs {
		if err := b.addValue(Key{Segment: o.Segment, Type: out.Type.TokenType()}, out.Value, true); err != nil {
			return err
		}
	}
	return nil
}

// AddCall adds the mints of c, subtracts what the contract takes in
// (inputs and mints) and adds what it releases. Mints are thereby absorbed
// by the contract balance.
// The mint add and subtract cancel out and only matter for overflow
// detection, which is why mints never show up in Check.
func (b *Balance) AddCall(c *effects.Call) error {
	e := &c.Effects
	for _, m := range c.Mints() {
		k := Key{Segment: c.Segment, Type: m.Type}
		if err := b.addValue(k, m.Amount, false); err != nil {
			return err
		}
		if err := b.addValue(k, m.Amount, true); err != nil {
			return err
		}
	}
	for _, tt := range effects.SortedTypes(e.UnshieldedInputs) {
		if err := b.addValue(Key{Segment: c.Segment, Type: tt}, e.UnshieldedInputs[tt], true); err != nil {
			return err
		}
	}
	for _, tt := range effects.SortedTypes(e.UnshieldedOutputs) {
		if err := b.addValue(Key{Segment: c.Segment, Type: tt}, e.UnshieldedOutputs[tt], false); err != nil {
			return err
		}
	}
	return nil
}

// Check reports the first accumulator, in key order, that is not zero.
func (b *Balance) Check() error {
	for _, k := range b.Keys() {
		if v := b.m[k]; v.Sign() != 0 {
			return &types.BalanceMismatchError{Segment: k.Segment, Type: k.Type, Imbalance: new(big.Int).Set(v)}
		}
	}
	return nil
}

// Aggregate folds every value movement of a transaction and checks that
// the result is zero everywhere.
func Aggregate(bundles []*shielded.Bundle, offers []*unshielded.Offer, calls []*effects.Call) (*Balance, error) {
	b := New()
	for _, bundle := range bundles {
		if err := b.AddBundle(bundle); err != nil {
			return b, err
		}
	}
	for _, o := range offers {
		if err := b.AddOffer(o); err != nil {
			return b, err
		}
	}
	for _, c := range calls {
		if err := b.AddCall(c); err != nil {
			return b, err
		}
	}
	return b, b.Check()
}
