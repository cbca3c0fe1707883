package node

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/config"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/effects"
	"github.com/kysee/zkledger/zk-asset/prover"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
	"github.com/kysee/zkledger/zk-asset/verifier"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const genesisTime = 1000

var ped = func() *crypto.Pedersen {
	p, err := crypto.NewPedersen(crypto.DefaultBaseCacheSize)
	if err != nil {
		panic(err)
	}
	return p
}()

type fixture struct {
	ledger   *Ledger
	alice    *prover.Wallet
	bob      *prover.Wallet
	contract types.ContractAddress
	tt       types.ShieldedTokenType
	ut       types.UnshieldedTokenType
	user     types.UserAddress
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	opts = append([]Option{WithScheme(ped), WithLogger(zerolog.Nop())}, opts...)
	l, err := NewLedger(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	f := &fixture{
		ledger:   l,
		alice:    prover.NewWallet(),
		bob:      prover.NewWallet(),
		contract: types.ContractAddressFromBytes(types.RandBytes(32)),
	}
	f.tt = types.CustomShieldedTokenType(f.contract, common.HexToHash("0x01"))
	f.ut = types.CustomUnshieldedTokenType(f.contract, common.HexToHash("0x01"))
	copy(f.user[:], types.RandBytes(32))
	return f
}

func defaultFixture(t *testing.T, opts ...Option) *fixture {
	cfg := config.Defaults
	return newFixture(t, &cfg, opts...)
}

// genesis gives alice one shielded coin per value and the user one
// unshielded output of 1000.
func (f *fixture) genesis(t *testing.T, values ...uint64) []*types.CoinInfo {
	var (
		coins []*types.CoinInfo
		cms   []types.Commitment
	)
	for _, v := range values {
		coin := types.NewCoin(f.tt, uint256.NewInt(v))
		f.alice.AddCoin(coin)
		coins = append(coins, coin)
		cms = append(cms, coin.Commitment(f.alice.PublicKey()))
	}
	g := &Genesis{
		Time:        genesisTime,
		Commitments: cms,
		Utxos: []*types.Utxo{{
			Value:      uint256.NewInt(1000),
			Owner:      f.user,
			Type:       f.ut,
			IntentHash: common.Hash{},
			OutputNo:   0,
		}},
	}
	require.NoError(t, f.ledger.InitGenesis(g))
	return coins
}

// transfer spends coin from alice into outputs of the given values, the
// first to bob and the rest back to alice.
func (f *fixture) transfer(t *testing.T, coin *types.CoinInfo, root common.Hash, values ...uint64) (*shielded.Bundle, []*types.CoinInfo) {
	bb := prover.NewBundleBuilder(ped, 0)
	_, err := bb.AddInput(coin, f.alice.Owner(), root)
	require.NoError(t, err)

	vs := make([]*uint256.Int, len(values))
	for i, v := range values {
		vs[i] = uint256.NewInt(v)
	}
	children := coin.Split(vs...)
	for i, child := range children {
		r := f.alice.Recipient()
		if i == 0 {
			r = f.bob.Recipient()
		}
		_, err := bb.AddOutput(child, r)
		require.NoError(t, err)
	}
	return bb.Build(), children
}

func shieldedTx(b *shielded.Bundle) *Transaction {
	return &Transaction{Shielded: []*shielded.Bundle{b}}
}

func TestShieldedTransfer(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100)
	ctx := context.Background()

	b, children := f.transfer(t, coins[0], f.ledger.Root(), 60, 40)
	require.Empty(t, b.Deltas)
	require.NoError(t, f.ledger.ApplyTransaction(ctx, shieldedTx(b)))

	require.True(t, f.ledger.HasNullifier(coins[0].Nullifier(f.alice.Secret)))
	require.True(t, f.ledger.HasCommitment(children[0].Commitment(f.bob.PublicKey())))
	require.True(t, f.ledger.HasCommitment(children[1].Commitment(f.alice.PublicKey())))

	// the new root is usable only once the block is finalized
	require.False(t, f.ledger.RootValid(f.ledger.Root()))
	root, err := f.ledger.FinalizeBlock(genesisTime + 10)
	require.NoError(t, err)
	require.True(t, f.ledger.RootValid(root))

	path, err := f.ledger.MerklePath(children[0].Commitment(f.bob.PublicKey()))
	require.NoError(t, err)
	require.Equal(t, root, path.Root)
	require.True(t, path.Verify(f.ledger.hasher))

	// bob spends what he received against the finalized root
	bb := prover.NewBundleBuilder(ped, 0)
	_, err = bb.AddInput(children[0], f.bob.Owner(), root)
	require.NoError(t, err)
	_, err = bb.AddOutput(children[0].Evolve(common.Hash{}), f.alice.Recipient())
	require.NoError(t, err)
	require.NoError(t, f.ledger.ApplyTransaction(ctx, shieldedTx(bb.Build())))
}

func TestDoubleSpend(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100)
	ctx := context.Background()
	root := f.ledger.Root()

	b, _ := f.transfer(t, coins[0], root, 60, 40)
	require.NoError(t, f.ledger.ApplyTransaction(ctx, shieldedTx(b)))

	again, _ := f.transfer(t, coins[0], root, 100)
	err := f.ledger.ApplyTransaction(ctx, shieldedTx(again))
	require.ErrorIs(t, err, types.ErrDoubleUse)
	var dse *types.DoubleSpendError
	require.ErrorAs(t, err, &dse)
	require.Equal(t, coins[0].Nullifier(f.alice.Secret), dse.Nullifier)
}

func TestUnbalancedTransfer(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100)
	ctx := context.Background()

	// 100 into 60 + 50 declares a delta of -10, which nothing absorbs
	b, children := f.transfer(t, coins[0], f.ledger.Root(), 60, 50)
	require.Len(t, b.Deltas, 1)
	require.Equal(t, int64(-10), b.Deltas[0].Value.Int64())
	require.ErrorIs(t, f.ledger.ApplyTransaction(ctx, shieldedTx(b)), types.ErrConservation)

	// hiding the delta breaks the value commitments
	b.Deltas = nil
	err := f.ledger.ApplyTransaction(ctx, shieldedTx(b))
	var be *types.BalancingError
	require.ErrorAs(t, err, &be)

	// nothing of the rejected transactions reached the ledger
	require.False(t, f.ledger.HasNullifier(coins[0].Nullifier(f.alice.Secret)))
	require.False(t, f.ledger.HasCommitment(children[0].Commitment(f.bob.PublicKey())))
}

func TestEvolveCollision(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100)

	sep := common.HexToHash("0x07")
	first := coins[0].Evolve(sep)
	first.Value = uint256.NewInt(50)
	second := coins[0].Evolve(sep)
	second.Value = uint256.NewInt(50)

	bb := prover.NewBundleBuilder(ped, 0)
	_, err := bb.AddInput(coins[0], f.alice.Owner(), f.ledger.Root())
	require.NoError(t, err)
	_, err = bb.AddOutput(first, f.alice.Recipient())
	require.NoError(t, err)
	_, err = bb.AddOutput(second, f.alice.Recipient())
	require.NoError(t, err)

	err = f.ledger.ApplyTransaction(context.Background(), shieldedTx(bb.Build()))
	var dce *types.DuplicateCommitmentError
	require.ErrorAs(t, err, &dce)
	require.Equal(t, first.Commitment(f.alice.PublicKey()), dce.Commitment)
	require.False(t, f.ledger.HasNullifier(coins[0].Nullifier(f.alice.Secret)))
}

func TestRootRetention(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100, 200)
	ctx := context.Background()
	old := f.ledger.Root()

	b, _ := f.transfer(t, coins[0], old, 60, 40)
	require.NoError(t, f.ledger.ApplyTransaction(ctx, shieldedTx(b)))
	_, err := f.ledger.FinalizeBlock(genesisTime + 1000)
	require.NoError(t, err)

	retention := config.Defaults.RootRetentionSeconds
	_, err = f.ledger.FinalizeBlock(genesisTime + retention)
	require.NoError(t, err)
	require.True(t, f.ledger.RootValid(old))

	_, err = f.ledger.FinalizeBlock(genesisTime + retention + 1)
	require.NoError(t, err)
	require.False(t, f.ledger.RootValid(old))

	stale, _ := f.transfer(t, coins[1], old, 200)
	err = f.ledger.ApplyTransaction(ctx, shieldedTx(stale))
	var ure *types.UnknownRootError
	require.ErrorAs(t, err, &ure)
	require.Equal(t, old, ure.Root)

	fresh, _ := f.transfer(t, coins[1], f.ledger.Root(), 200)
	require.NoError(t, f.ledger.ApplyTransaction(ctx, shieldedTx(fresh)))
}

func TestDepositAndClaimedWithdrawal(t *testing.T) {
	f := defaultFixture(t)
	f.genesis(t)
	ctx := context.Background()
	tt := f.ut.TokenType()

	utxos := f.ledger.UtxosOf(f.user)
	require.Len(t, utxos, 1)

	// 1000 in, 300 change back, 700 into the contract
	deposit := &Transaction{
		Unshielded: []*unshielded.Offer{{
			IntentHash: types.RandHash(),
			Inputs:     utxos,
			Outputs:    []*unshielded.Output{{Value: uint256.NewInt(300), Owner: f.user, Type: f.ut}},
		}},
		Calls: []*effects.Call{{
			Address:    f.contract,
			EntryPoint: "deposit",
			Effects: effects.Effects{
				UnshieldedInputs: map[types.TokenType]*uint256.Int{tt: uint256.NewInt(700)},
			},
		}},
	}
	require.NoError(t, f.ledger.ApplyTransaction(ctx, deposit))
	require.Equal(t, uint64(700), f.ledger.Balance(f.contract, tt).Uint64())
	_, ok := f.ledger.Utxo(utxos[0].ID())
	require.False(t, ok)
	change := f.ledger.UtxosOf(f.user)
	require.Len(t, change, 1)
	require.Equal(t, uint64(300), change[0].Value.Uint64())

	withdraw := func() *effects.Call {
		return &effects.Call{
			Address:    f.contract,
			EntryPoint: "withdraw",
			Effects: effects.Effects{
				UnshieldedOutputs: map[types.TokenType]*uint256.Int{tt: uint256.NewInt(30)},
				ClaimedUnshieldedSpends: map[effects.SpendKey]*uint256.Int{
					{Type: tt, Recipient: types.UserRecipient(f.user)}: uint256.NewInt(30),
				},
			},
		}
	}

	err := f.ledger.ApplyTransaction(ctx, &Transaction{Calls: []*effects.Call{withdraw()}})
	require.ErrorIs(t, err, types.ErrUnbackedClaim)
	require.Equal(t, uint64(700), f.ledger.Balance(f.contract, tt).Uint64())

	tx := &Transaction{
		Unshielded: []*unshielded.Offer{{
			IntentHash: types.RandHash(),
			Outputs:    []*unshielded.Output{{Value: uint256.NewInt(30), Owner: f.user, Type: f.ut}},
		}},
		Calls: []*effects.Call{withdraw()},
	}
	require.NoError(t, f.ledger.Validate(ctx, tx))
	require.Equal(t, uint64(700), f.ledger.Balance(f.contract, tt).Uint64())

	require.NoError(t, f.ledger.ApplyTransaction(ctx, tx))
	require.Equal(t, uint64(670), f.ledger.Balance(f.contract, tt).Uint64())
	require.Len(t, f.ledger.UtxosOf(f.user), 2)

	// replaying the deposit finds its input gone
	err = f.ledger.ApplyTransaction(ctx, deposit)
	var mue *types.MissingUtxoError
	require.ErrorAs(t, err, &mue)
}

func TestUnbalancedOffer(t *testing.T) {
	f := defaultFixture(t)
	f.genesis(t)

	// 1000 in, 300 out, nobody takes the rest
	tx := &Transaction{
		Unshielded: []*unshielded.Offer{{
			IntentHash: types.RandHash(),
			Inputs:     f.ledger.UtxosOf(f.user),
			Outputs:    []*unshielded.Output{{Value: uint256.NewInt(300), Owner: f.user, Type: f.ut}},
		}},
	}
	err := f.ledger.ApplyTransaction(context.Background(), tx)
	var bme *types.BalanceMismatchError
	require.ErrorAs(t, err, &bme)
	require.Equal(t, int64(700), bme.Imbalance.Int64())
	require.Len(t, f.ledger.UtxosOf(f.user), 1)
}

func TestInvalidProof(t *testing.T) {
	reject := verifier.Func(func(st verifier.Statement, _ []byte) bool {
		return st.Kind != verifier.KindOutput
	})
	f := defaultFixture(t, WithVerifier(reject))
	coins := f.genesis(t, 100)

	b, _ := f.transfer(t, coins[0], f.ledger.Root(), 60, 40)
	err := f.ledger.ApplyTransaction(context.Background(), shieldedTx(b))
	require.ErrorIs(t, err, types.ErrInvalidProof)
	var ipe *types.InvalidProofError
	require.ErrorAs(t, err, &ipe)
	require.Equal(t, "output", ipe.Kind)
	require.Equal(t, 0, ipe.Index)
}

func TestMalformedTransaction(t *testing.T) {
	f := defaultFixture(t)
	coins := f.genesis(t, 100)
	b, _ := f.transfer(t, coins[0], f.ledger.Root(), 100)

	err := f.ledger.ApplyTransaction(context.Background(), &Transaction{Shielded: []*shielded.Bundle{b, b}})
	require.ErrorIs(t, err, types.ErrMalformed)

	b.BindingRandomness = nil
	err = f.ledger.ApplyTransaction(context.Background(), shieldedTx(b))
	var mbe *types.MalformedBundleError
	require.ErrorAs(t, err, &mbe)
	require.Equal(t, "binding_randomness", mbe.Field)
}

func TestFinalizeBlockTime(t *testing.T) {
	f := defaultFixture(t)
	f.genesis(t)

	_, err := f.ledger.FinalizeBlock(genesisTime - 1)
	require.ErrorIs(t, err, ErrTimeReversed)
	_, err = f.ledger.FinalizeBlock(genesisTime)
	require.NoError(t, err)
	require.Equal(t, uint64(genesisTime), f.ledger.Time())

	require.ErrorIs(t, f.ledger.InitGenesis(&Genesis{}), ErrNotEmpty)
}

func TestReload(t *testing.T) {
	cfg := config.Defaults
	cfg.DataDir = t.TempDir()

	f := newFixture(t, &cfg)
	coins := f.genesis(t, 100)
	ctx := context.Background()
	tt := f.ut.TokenType()

	b, children := f.transfer(t, coins[0], f.ledger.Root(), 60, 40)
	tx := shieldedTx(b)
	tx.Unshielded = []*unshielded.Offer{{
		IntentHash: types.RandHash(),
		Inputs:     f.ledger.UtxosOf(f.user),
		Outputs:    []*unshielded.Output{{Value: uint256.NewInt(300), Owner: f.user, Type: f.ut}},
	}}
	tx.Calls = []*effects.Call{{
		Address:    f.contract,
		EntryPoint: "deposit",
		Effects: effects.Effects{
			UnshieldedInputs: map[types.TokenType]*uint256.Int{tt: uint256.NewInt(700)},
		},
	}}
	require.NoError(t, f.ledger.ApplyTransaction(ctx, tx))
	root, err := f.ledger.FinalizeBlock(genesisTime + 5)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Close())

	l, err := NewLedger(&cfg, WithScheme(ped), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, root, l.Root())
	require.True(t, l.RootValid(root))
	require.Equal(t, uint64(genesisTime+5), l.Time())
	require.True(t, l.HasNullifier(coins[0].Nullifier(f.alice.Secret)))
	require.True(t, l.HasCommitment(children[1].Commitment(f.alice.PublicKey())))
	require.Equal(t, uint64(700), l.Balance(f.contract, tt).Uint64())
	require.Len(t, l.UtxosOf(f.user), 1)

	// the reloaded ledger still rejects the spent coin
	again, _ := f.transfer(t, coins[0], root, 100)
	require.ErrorIs(t, l.ApplyTransaction(ctx, shieldedTx(again)), types.ErrDoubleUse)
}

func TestPlonkNeedsMiMCTree(t *testing.T) {
	cfg := config.Defaults
	cfg.TreeHasher = utils.HasherBlake2s
	_, err := NewLedger(&cfg, WithVerifier(verifier.NewPlonk(&verifier.Keys{})), WithLogger(zerolog.Nop()))
	require.ErrorIs(t, err, ErrHasherMismatch)
}
