package effects

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
)

// Reconcile checks the claims of calls against the bundles and offers of
// the transaction and folds their effects into a changeset of balances.
// bundles and offers are indexed by segment.
func Reconcile(
	calls []*Call,
	bundles map[types.Segment]*shielded.Bundle,
	offers map[types.Segment]*unshielded.Offer,
	balances *Balances,
) (*Changeset, error) {
	for _, c := range calls {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if err := CheckClaims(calls, bundles, offers); err != nil {
		return nil, err
	}

	cs := balances.Begin()
	for _, c := range calls {
		if err := apply(cs, c); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// apply credits inputs and mints, then debits outputs.
func apply(cs *Changeset, c *Call) error {
	e := &c.Effects
	for _, tt := range SortedTypes(e.UnshieldedInputs) {
		if err := cs.Credit(c.Segment, c.Address, tt, e.UnshieldedInputs[tt]); err != nil {
			return err
		}
	}
	for _, m := range c.Mints() {
		if err := cs.Credit(c.Segment, c.Address, m.Type, m.Amount); err != nil {
			return err
		}
	}
	for _, tt := range SortedTypes(e.UnshieldedOutputs) {
		if err := cs.Debit(c.Address, tt, e.UnshieldedOutputs[tt]); err != nil {
			return err
		}
	}
	return nil
}

func unbacked(c *Call, kind types.ClaimKind, format string, args ...any) error {
	return &types.UnbackedClaimError{Contract: c.Address, Kind: kind, Claim: fmt.Sprintf(format, args...)}
}

type claimedBy struct {
	seg  types.Segment
	addr types.ContractAddress
}

// segmentView is what the calls of one segment may claim.
type segmentView struct {
	nullifiers  map[types.Nullifier]*types.ContractAddress
	commitments map[types.Commitment]*types.ContractAddress
	spends      map[SpendKey]*uint256.Int
}

func newSegmentView(seg types.Segment, calls []*Call, b *shielded.Bundle, o *unshielded.Offer) *segmentView {
	v := &segmentView{
		nullifiers:  make(map[types.Nullifier]*types.ContractAddress),
		commitments: make(map[types.Commitment]*types.ContractAddress),
		spends:      make(map[SpendKey]*uint256.Int),
	}
	if b != nil {
		for _, in := range b.Inputs {
			v.nullifiers[in.Nullifier] = in.Contract
		}
		for _, out := range b.Outputs {
			v.commitments[out.Commitment] = out.Contract
		}
		for _, tr := range b.Transients {
			v.nullifiers[tr.Nullifier] = tr.Contract
			v.commitments[tr.Commitment] = tr.Contract
		}
	}
	if o != nil {
		for _, out := range o.Outputs {
			v.addSpend(SpendKey{Type: out.Type.TokenType(), Recipient: types.UserRecipient(out.Owner)}, out.Value)
		}
	}
	for _, c := range calls {
		if c.Segment != seg {
			continue
		}
		for tt, amt := range c.Effects.UnshieldedInputs {
			v.addSpend(SpendKey{Type: tt, Recipient: types.ContractRecipient(c.Address)}, amt)
		}
	}
	return v
}

// addSpend saturates at 2^256-1, far above any claimable amount.
func (v *segmentView) addSpend(k SpendKey, amt *uint256.Int) {
	cur, ok := v.spends[k]
	if !ok {
		cur = new(uint256.Int)
		v.spends[k] = cur
	}
	if _, overflow := cur.AddOverflow(cur, amt); overflow {
		cur.SetAllOne()
	}
}

// CheckClaims enforces that every claim of every call is backed by the
// transaction, that nothing is claimed twice, and that every
// contract-owned shielded input and output is claimed by its contract.
func CheckClaims(calls []*Call, bundles map[types.Segment]*shielded.Bundle, offers map[types.Segment]*unshielded.Offer) error {
	views := make(map[types.Segment]*segmentView)
	view := func(seg types.Segment) *segmentView {
		if v, ok := views[seg]; ok {
			return v
		}
		v := newSegmentView(seg, calls, bundles[seg], offers[seg])
		views[seg] = v
		return v
	}

	called := make(map[ClaimedCall][]*Call)
	for _, c := range calls {
		k := ClaimedCall{Address: c.Address, EntryPoint: c.EntryPoint}
		called[k] = append(called[k], c)
	}

	nullifiers := make(map[types.Nullifier]claimedBy)
	receives := make(map[types.Commitment]claimedBy)
	spends := make(map[types.Commitment]struct{})
	unshieldedClaims := make(map[types.Segment]map[SpendKey]*uint256.Int)

	for _, c := range calls {
		v := view(c.Segment)
		e := &c.Effects

		for _, nf := range e.ClaimedNullifiers {
			if _, ok := v.nullifiers[nf]; !ok {
				return unbacked(c, types.ClaimNullifier, "%s not spent in segment %d", nf, c.Segment)
			}
			if _, ok := nullifiers[nf]; ok {
				return unbacked(c, types.ClaimNullifier, "%s claimed twice", nf)
			}
			nullifiers[nf] = claimedBy{seg: c.Segment, addr: c.Address}
		}
		for _, cm := range e.ClaimedShieldedReceives {
			if _, ok := v.commitments[cm]; !ok {
				return unbacked(c, types.ClaimShieldedReceive, "%s not created in segment %d", cm, c.Segment)
			}
			if _, ok := receives[cm]; ok {
				return unbacked(c, types.ClaimShieldedReceive, "%s claimed twice", cm)
			}
			receives[cm] = claimedBy{seg: c.Segment, addr: c.Address}
		}
		for _, cm := range e.ClaimedShieldedSpends {
			if _, ok := v.commitments[cm]; !ok {
				return unbacked(c, types.ClaimShieldedSpend, "%s not created in segment %d", cm, c.Segment)
			}
			if _, ok := spends[cm]; ok {
				return unbacked(c, types.ClaimShieldedSpend, "%s claimed twice", cm)
			}
			spends[cm] = struct{}{}
		}
		for _, cc := range e.ClaimedContractCalls {
			backed := false
			for _, callee := range called[cc] {
				if callee != c {
					backed = true
					break
				}
			}
			if !backed {
				return unbacked(c, types.ClaimContractCall, "%s.%s not called", cc.Address, cc.EntryPoint)
			}
		}

		claims := unshieldedClaims[c.Segment]
		if claims == nil {
			claims = make(map[SpendKey]*uint256.Int)
			unshieldedClaims[c.Segment] = claims
		}
		for _, k := range sortedSpendKeys(e.ClaimedUnshieldedSpends) {
			amt := e.ClaimedUnshieldedSpends[k]
			total, ok := types.AddValue(types.ValueOrZero(claims[k]), amt)
			backing := v.spends[k]
			if !ok || backing == nil || total.Gt(backing) {
				return unbacked(c, types.ClaimUnshieldedSpend, "%s: %s exceeds %s", k, amt.Dec(), types.ValueOrZero(backing).Dec())
			}
			claims[k] = total
		}
	}

	return checkContractOwned(bundles, nullifiers, receives)
}

// checkContractOwned requires every contract-owned input to be claimed as
// a nullifier, and every contract-owned output as a receive, by its owner
// in the bundle's segment.
func checkContractOwned(
	bundles map[types.Segment]*shielded.Bundle,
	nullifiers map[types.Nullifier]claimedBy,
	receives map[types.Commitment]claimedBy,
) error {
	segs := make([]types.Segment, 0, len(bundles))
	for seg := range bundles {
		segs = append(segs, seg)
	}
	slices.Sort(segs)

	ownedBy := func(by claimedBy, ok bool, seg types.Segment, owner *types.ContractAddress) bool {
		return ok && by.seg == seg && by.addr == *owner
	}
	inputUnclaimed := func(owner *types.ContractAddress, nf types.Nullifier, seg types.Segment) error {
		by, ok := nullifiers[nf]
		if ownedBy(by, ok, seg, owner) {
			return nil
		}
		return &types.UnbackedClaimError{Contract: *owner, Kind: types.ClaimContractInput, Claim: nf.String()}
	}
	outputUnclaimed := func(owner *types.ContractAddress, cm types.Commitment, seg types.Segment) error {
		by, ok := receives[cm]
		if ownedBy(by, ok, seg, owner) {
			return nil
		}
		return &types.UnbackedClaimError{Contract: *owner, Kind: types.ClaimContractOutput, Claim: cm.String()}
	}

	for _, seg := range segs {
		b := bundles[seg]
		for _, in := range b.Inputs {
			if in.Contract == nil {
				continue
			}
			if err := inputUnclaimed(in.Contract, in.Nullifier, seg); err != nil {
				return err
			}
		}
		for _, out := range b.Outputs {
			if out.Contract == nil {
				continue
			}
			if err := outputUnclaimed(out.Contract, out.Commitment, seg); err != nil {
				return err
			}
		}
		for _, tr := range b.Transients {
			if tr.Contract == nil {
				continue
			}
			if err := outputUnclaimed(tr.Contract, tr.Commitment, seg); err != nil {
				return err
			}
			if err := inputUnclaimed(tr.Contract, tr.Nullifier, seg); err != nil {
				return err
			}
		}
	}
	return nil
}
