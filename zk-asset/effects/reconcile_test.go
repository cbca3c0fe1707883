package effects

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	contract types.ContractAddress
	alice    types.UserAddress
	tt       types.UnshieldedTokenType
	balances *Balances
}

func newFixture() *fixture {
	f := &fixture{
		contract: types.ContractAddressFromBytes(types.RandBytes(32)),
		tt:       types.UnshieldedTokenType(types.RandHash()),
		balances: NewBalances(),
	}
	copy(f.alice[:], types.RandBytes(32))
	return f
}

func (f *fixture) T() types.TokenType {
	return f.tt.TokenType()
}

func amounts(tt types.TokenType, v uint64) map[types.TokenType]*uint256.Int {
	return map[types.TokenType]*uint256.Int{tt: uint256.NewInt(v)}
}

func reconcile(f *fixture, calls []*Call, b *shielded.Bundle, o *unshielded.Offer) error {
	bundles := map[types.Segment]*shielded.Bundle{}
	if b != nil {
		bundles[b.Segment] = b
	}
	offers := map[types.Segment]*unshielded.Offer{}
	if o != nil {
		offers[o.Segment] = o
	}
	cs, err := Reconcile(calls, bundles, offers, f.balances)
	if err != nil {
		return err
	}
	return f.balances.Commit(cs)
}

func TestDepositThenClaimedWithdrawal(t *testing.T) {
	f := newFixture()

	// the contract takes in 700
	deposit := &Call{Address: f.contract, EntryPoint: "deposit", Effects: Effects{
		UnshieldedInputs: amounts(f.T(), 700),
	}}
	require.NoError(t, reconcile(f, []*Call{deposit}, nil, nil))
	require.Equal(t, uint64(700), f.balances.Get(f.contract, f.T()).Uint64())

	withdraw := func() *Call {
		return &Call{Address: f.contract, EntryPoint: "withdraw", Effects: Effects{
			UnshieldedOutputs: amounts(f.T(), 30),
			ClaimedUnshieldedSpends: map[SpendKey]*uint256.Int{
				{Type: f.T(), Recipient: types.UserRecipient(f.alice)}: uint256.NewInt(30),
			},
		}}
	}

	// without an offer output to Alice the claim is unbacked
	err := reconcile(f, []*Call{withdraw()}, nil, nil)
	require.ErrorIs(t, err, types.ErrUnbackedClaim)
	var uce *types.UnbackedClaimError
	require.ErrorAs(t, err, &uce)
	require.Equal(t, f.contract, uce.Contract)
	require.Equal(t, types.ClaimUnshieldedSpend, uce.Kind)
	require.Equal(t, uint64(700), f.balances.Get(f.contract, f.T()).Uint64())

	// an output of 29 does not back a claim of 30
	short := &unshielded.Offer{IntentHash: types.RandHash(), Outputs: []*unshielded.Output{
		{Value: uint256.NewInt(29), Owner: f.alice, Type: f.tt},
	}}
	require.ErrorAs(t, reconcile(f, []*Call{withdraw()}, nil, short), &uce)

	offer := &unshielded.Offer{IntentHash: types.RandHash(), Outputs: []*unshielded.Output{
		{Value: uint256.NewInt(30), Owner: f.alice, Type: f.tt},
	}}
	require.NoError(t, reconcile(f, []*Call{withdraw()}, nil, offer))
	require.Equal(t, uint64(670), f.balances.Get(f.contract, f.T()).Uint64())
}

func TestClaimsAcrossCallsAreSummed(t *testing.T) {
	f := newFixture()
	f.balances.Set(f.contract, f.T(), uint256.NewInt(100))

	claim := func() *Call {
		return &Call{Address: f.contract, EntryPoint: "pay", Effects: Effects{
			UnshieldedOutputs: amounts(f.T(), 20),
			ClaimedUnshieldedSpends: map[SpendKey]*uint256.Int{
				{Type: f.T(), Recipient: types.UserRecipient(f.alice)}: uint256.NewInt(20),
			},
		}}
	}
	offer := &unshielded.Offer{IntentHash: types.RandHash(), Outputs: []*unshielded.Output{
		{Value: uint256.NewInt(30), Owner: f.alice, Type: f.tt},
	}}

	var uce *types.UnbackedClaimError
	require.ErrorAs(t, reconcile(f, []*Call{claim(), claim()}, nil, offer), &uce)
	require.Equal(t, types.ClaimUnshieldedSpend, uce.Kind)
}

func TestContractToContractSpend(t *testing.T) {
	f := newFixture()
	other := types.ContractAddressFromBytes(types.RandBytes(32))
	f.balances.Set(f.contract, f.T(), uint256.NewInt(50))

	payer := &Call{Address: f.contract, EntryPoint: "pay", Effects: Effects{
		UnshieldedOutputs: amounts(f.T(), 50),
		ClaimedUnshieldedSpends: map[SpendKey]*uint256.Int{
			{Type: f.T(), Recipient: types.ContractRecipient(other)}: uint256.NewInt(50),
		},
		ClaimedContractCalls: []ClaimedCall{{Address: other, EntryPoint: "receive"}},
	}}
	payee := &Call{Address: other, EntryPoint: "receive", Effects: Effects{
		UnshieldedInputs: amounts(f.T(), 50),
	}}
	require.NoError(t, reconcile(f, []*Call{payer, payee}, nil, nil))
	require.True(t, f.balances.Get(f.contract, f.T()).IsZero())
	require.Equal(t, uint64(50), f.balances.Get(other, f.T()).Uint64())
	require.Equal(t, []types.ContractAddress{other}, f.balances.Contracts())
}

func TestClaimedContractCall(t *testing.T) {
	f := newFixture()
	other := types.ContractAddressFromBytes(types.RandBytes(32))

	caller := &Call{Address: f.contract, EntryPoint: "a", Effects: Effects{
		ClaimedContractCalls: []ClaimedCall{{Address: other, EntryPoint: "b"}},
	}}
	var uce *types.UnbackedClaimError
	require.ErrorAs(t, reconcile(f, []*Call{caller}, nil, nil), &uce)
	require.Equal(t, types.ClaimContractCall, uce.Kind)

	// a call cannot back its own claim
	self := &Call{Address: f.contract, EntryPoint: "a", Effects: Effects{
		ClaimedContractCalls: []ClaimedCall{{Address: f.contract, EntryPoint: "a"}},
	}}
	require.ErrorAs(t, reconcile(f, []*Call{self}, nil, nil), &uce)

	callee := &Call{Address: other, EntryPoint: "b"}
	require.NoError(t, reconcile(f, []*Call{caller, callee}, nil, nil))
}

func TestInsufficientBalance(t *testing.T) {
	f := newFixture()
	f.balances.Set(f.contract, f.T(), uint256.NewInt(10))

	call := &Call{Address: f.contract, EntryPoint: "burn", Effects: Effects{
		UnshieldedOutputs: amounts(f.T(), 11),
	}}
	err := reconcile(f, []*Call{call}, nil, nil)
	require.ErrorIs(t, err, types.ErrConservation)
	var ibe *types.InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	require.Equal(t, uint64(10), ibe.Balance.Uint64())
	require.Equal(t, uint64(11), ibe.Required.Uint64())

	// inputs of the same call are credited before outputs are debited
	call.Effects.UnshieldedInputs = amounts(f.T(), 1)
	require.NoError(t, reconcile(f, []*Call{call}, nil, nil))
	require.True(t, f.balances.Get(f.contract, f.T()).IsZero())
}

func TestBalanceOverflow(t *testing.T) {
	f := newFixture()
	f.balances.Set(f.contract, f.T(), types.MaxValue)

	call := &Call{Address: f.contract, Segment: 1, EntryPoint: "in", Effects: Effects{
		UnshieldedInputs: amounts(f.T(), 1),
	}}
	var boe *types.BalanceOverflowError
	require.ErrorAs(t, reconcile(f, []*Call{call}, nil, nil), &boe)
	require.Equal(t, f.contract, *boe.Contract)
	require.Equal(t, types.Segment(1), boe.Segment)
}

func TestMints(t *testing.T) {
	f := newFixture()
	sep := common.Hash{0xaa}

	call := &Call{Address: f.contract, EntryPoint: "mint", Effects: Effects{
		ShieldedMints:   map[common.Hash]uint64{sep: 5},
		UnshieldedMints: map[common.Hash]uint64{sep: 7},
	}}
	require.NoError(t, reconcile(f, []*Call{call}, nil, nil))

	st := types.CustomShieldedTokenType(f.contract, sep).TokenType()
	ut := types.CustomUnshieldedTokenType(f.contract, sep).TokenType()
	require.Equal(t, uint64(5), f.balances.Get(f.contract, st).Uint64())
	require.Equal(t, uint64(7), f.balances.Get(f.contract, ut).Uint64())
	require.Len(t, f.balances.Of(f.contract), 2)
}

func TestShieldedClaims(t *testing.T) {
	f := newFixture()
	var nf types.Nullifier
	var cm, stray types.Commitment
	copy(nf[:], types.RandBytes(32))
	copy(cm[:], types.RandBytes(32))
	copy(stray[:], types.RandBytes(32))

	contract := f.contract
	bundle := &shielded.Bundle{
		Inputs:  []*shielded.Input{{Nullifier: nf, Contract: &contract}},
		Outputs: []*shielded.Output{{Commitment: cm, Contract: &contract}},
	}
	full := func() *Call {
		return &Call{Address: f.contract, EntryPoint: "move", Effects: Effects{
			ClaimedNullifiers:       []types.Nullifier{nf},
			ClaimedShieldedReceives: []types.Commitment{cm},
		}}
	}
	require.NoError(t, reconcile(f, []*Call{full()}, bundle, nil))

	var uce *types.UnbackedClaimError

	// contract-owned input left unclaimed
	c := full()
	c.Effects.ClaimedNullifiers = nil
	require.ErrorAs(t, reconcile(f, []*Call{c}, bundle, nil), &uce)
	require.Equal(t, types.ClaimContractInput, uce.Kind)

	// contract-owned output left unclaimed
	c = full()
	c.Effects.ClaimedShieldedReceives = nil
	require.ErrorAs(t, reconcile(f, []*Call{c}, bundle, nil), &uce)
	require.Equal(t, types.ClaimContractOutput, uce.Kind)

	// claims of things the bundle does not contain
	c = full()
	c.Effects.ClaimedShieldedSpends = []types.Commitment{stray}
	require.ErrorAs(t, reconcile(f, []*Call{c}, bundle, nil), &uce)
	require.Equal(t, types.ClaimShieldedSpend, uce.Kind)

	// a claim is only valid in the segment of the bundle
	c = full()
	c.Segment = 1
	require.ErrorAs(t, reconcile(f, []*Call{c}, bundle, nil), &uce)
	require.Equal(t, types.ClaimNullifier, uce.Kind)

	// the same nullifier claimed by two calls
	second := &Call{Address: f.contract, EntryPoint: "again", Effects: Effects{ClaimedNullifiers: []types.Nullifier{nf}}}
	require.ErrorAs(t, reconcile(f, []*Call{full(), second}, bundle, nil), &uce)
	require.Equal(t, types.ClaimNullifier, uce.Kind)

	// a different contract cannot claim another's coins
	other := &Call{Address: types.ContractAddressFromBytes(types.RandBytes(32)), EntryPoint: "steal", Effects: full().Effects}
	require.ErrorAs(t, reconcile(f, []*Call{other}, bundle, nil), &uce)
	require.Equal(t, types.ClaimContractInput, uce.Kind)
	require.Equal(t, f.contract, uce.Contract)
}

func TestMalformedEffects(t *testing.T) {
	f := newFixture()
	call := &Call{Address: f.contract, Effects: Effects{
		UnshieldedInputs: map[types.TokenType]*uint256.Int{f.T(): new(uint256.Int).Lsh(uint256.NewInt(1), 128)},
	}}
	require.ErrorIs(t, reconcile(f, []*Call{call}, nil, nil), types.ErrMalformed)

	dustWithID := types.TokenType{Kind: types.KindDust, ID: common.Hash{1}}
	unknownKind := types.TokenType{Kind: 7, ID: common.Hash{2}}
	one := uint256.NewInt(1)
	for name, e := range map[string]Effects{
		"input dust with id":  {UnshieldedInputs: map[types.TokenType]*uint256.Int{dustWithID: one}},
		"output unknown kind": {UnshieldedOutputs: map[types.TokenType]*uint256.Int{unknownKind: one}},
		"spend unknown kind": {ClaimedUnshieldedSpends: map[SpendKey]*uint256.Int{
			{Type: unknownKind, Recipient: types.ContractRecipient(f.contract)}: one,
		}},
	} {
		call := &Call{Address: f.contract, Effects: e}
		err := call.Validate()
		require.ErrorIs(t, err, types.ErrMalformed, name)
		var me *types.MalformedError
		require.ErrorAs(t, err, &me, name)
		require.Equal(t, "effects", me.What, name)
		require.ErrorIs(t, reconcile(f, []*Call{call}, nil, nil), types.ErrMalformed, name)
	}
}
