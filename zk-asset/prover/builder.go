package prover

import (
	"hash"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/verifier"
	"github.com/pkg/errors"
)

// Owner is whoever can spend a coin: a user by its secret key, or a
// contract, whose address stands in for the secret.
type Owner struct {
	Secret   [32]byte
	Contract *types.ContractAddress
}

func UserOwner(sk types.CoinSecretKey) Owner {
	return Owner{Secret: sk}
}

func ContractOwner(addr types.ContractAddress) Owner {
	return Owner{Secret: addr, Contract: &addr}
}

func (o Owner) Recipient() types.Recipient {
	if o.Contract != nil {
		return types.ContractRecipient(*o.Contract)
	}
	return types.Recipient{ID: types.CoinSecretKey(o.Secret).PublicKey()}
}

// BundleBuilder assembles a shielded bundle, tracking the blinding factors
// and per-type net values so that the result balances.
type BundleBuilder struct {
	ped     *crypto.Pedersen
	hasher  func() hash.Hash
	segment types.Segment
	keys    *verifier.Keys

	bundle  shielded.Bundle
	binding *big.Int
	deltas  map[types.ShieldedTokenType]*big.Int
}

func NewBundleBuilder(ped *crypto.Pedersen, seg types.Segment) *BundleBuilder {
	return &BundleBuilder{
		ped:     ped,
		hasher:  utils.DefaultHasher,
		segment: seg,
		bundle:  shielded.Bundle{Segment: seg},
		binding: new(big.Int),
		deltas:  make(map[types.ShieldedTokenType]*big.Int),
	}
}

// WithHasher sets the tree hasher transient roots are computed with. It
// must match the ledger's.
func (bb *BundleBuilder) WithHasher(hasher func() hash.Hash) *BundleBuilder {
	bb.hasher = hasher
	return bb
}

// WithProofs makes the builder attach PLONK proofs made with keys.
func (bb *BundleBuilder) WithProofs(keys *verifier.Keys) *BundleBuilder {
	bb.keys = keys
	return bb
}

func (bb *BundleBuilder) commit(coin *types.CoinInfo) (crypto.ValueCommitment, *big.Int, error) {
	if !types.IsValue(coin.Value) {
		return crypto.ValueCommitment{}, nil, errors.Errorf("coin value out of range: %v", coin.Value)
	}
	r, err := bb.ped.RandomBlinding()
	if err != nil {
		return crypto.ValueCommitment{}, nil, err
	}
	return bb.ped.Commit(coin.Type, bb.segment, coin.Value.ToBig(), r), r, nil
}

func (bb *BundleBuilder) addDelta(tt types.ShieldedTokenType, v *big.Int) {
	d, ok := bb.deltas[tt]
	if !ok {
		d = new(big.Int)
		bb.deltas[tt] = d
	}
	d.Add(d, v)
}

// AddInput spends coin, a leaf of the tree with the given root. It cannot
// prove the spend; use AddInputPath when proofs are attached.
func (bb *BundleBuilder) AddInput(coin *types.CoinInfo, owner Owner, root common.Hash) (*shielded.Input, error) {
	if bb.keys != nil {
		return nil, errors.New("spend proof needs the membership path of the coin")
	}
	return bb.addInput(coin, owner, root, nil)
}

// AddInputPath spends coin, the leaf proven by path.
func (bb *BundleBuilder) AddInputPath(coin *types.CoinInfo, owner Owner, path *shielded.MerklePath) (*shielded.Input, error) {
	steps, err := path.Steps()
	if err != nil {
		return nil, err
	}
	return bb.addInput(coin, owner, path.Root, steps)
}

func (bb *BundleBuilder) addInput(coin *types.CoinInfo, owner Owner, root common.Hash, steps []shielded.PathStep) (*shielded.Input, error) {
	vc, r, err := bb.commit(coin)
	if err != nil {
		return nil, err
	}
	in := &shielded.Input{
		Nullifier:       coin.Nullifier(owner.Secret),
		MerkleRoot:      root,
		ValueCommitment: vc,
		Contract:        owner.Contract,
	}
	if bb.keys != nil {
		if in.Proof, err = ProveSpend(bb.keys, verifier.InputStatement(bb.segment, in), coin, owner.Secret, r, steps); err != nil {
			return nil, err
		}
	}
	bb.bundle.Inputs = append(bb.bundle.Inputs, in)
	bb.binding.Add(bb.binding, r)
	bb.addDelta(coin.Type, coin.Value.ToBig())
	return in, nil
}

// AddOutput creates coin for recipient.
func (bb *BundleBuilder) AddOutput(coin *types.CoinInfo, recipient types.Recipient) (*shielded.Output, error) {
	vc, r, err := bb.commit(coin)
	if err != nil {
		return nil, err
	}
	out := &shielded.Output{
		Commitment:      coin.CommitmentTo(recipient),
		ValueCommitment: vc,
	}
	if recipient.IsContract {
		addr := types.ContractAddress(recipient.ID)
		out.Contract = &addr
	}
	if bb.keys != nil {
		if out.Proof, err = ProveOutput(bb.keys, verifier.OutputStatement(bb.segment, out), coin, recipient.ID, r); err != nil {
			return nil, err
		}
	}
	bb.bundle.Outputs = append(bb.bundle.Outputs, out)
	bb.binding.Sub(bb.binding, r)
	bb.addDelta(coin.Type, new(big.Int).Neg(coin.Value.ToBig()))
	return out, nil
}

// AddTransient creates coin for owner and spends it in the same bundle.
func (bb *BundleBuilder) AddTransient(coin *types.CoinInfo, owner Owner) (*shielded.Transient, error) {
	vcIn, rIn, err := bb.commit(coin)
	if err != nil {
		return nil, err
	}
	vcOut, rOut, err := bb.commit(coin)
	if err != nil {
		return nil, err
	}
	cm := coin.CommitmentTo(owner.Recipient())
	tr := &shielded.Transient{
		Nullifier:             coin.Nullifier(owner.Secret),
		Commitment:            cm,
		InputRoot:             shielded.SingleLeafRoot(bb.hasher, cm),
		ValueCommitmentInput:  vcIn,
		ValueCommitmentOutput: vcOut,
		Contract:              owner.Contract,
	}
	if bb.keys != nil {
		spend, output := verifier.TransientStatements(bb.segment, tr)
		if tr.InputProof, err = ProveSpend(bb.keys, spend, coin, owner.Secret, rIn, nil); err != nil {
			return nil, err
		}
		if tr.OutputProof, err = ProveOutput(bb.keys, output, coin, owner.Recipient().ID, rOut); err != nil {
			return nil, err
		}
	}
	bb.bundle.Transients = append(bb.bundle.Transients, tr)
	bb.binding.Add(bb.binding, rIn)
	bb.binding.Sub(bb.binding, rOut)
	return tr, nil
}

// Build returns the bundle with its sorted non-zero deltas and the
// aggregate binding randomness.
func (bb *BundleBuilder) Build() *shielded.Bundle {
	b := bb.bundle
	b.Inputs = append([]*shielded.Input(nil), bb.bundle.Inputs...)
	b.Outputs = append([]*shielded.Output(nil), bb.bundle.Outputs...)
	b.Transients = append([]*shielded.Transient(nil), bb.bundle.Transients...)

	tts := make([]types.TokenType, 0, len(bb.deltas))
	for tt, d := range bb.deltas {
		if d.Sign() != 0 {
			tts = append(tts, tt.TokenType())
		}
	}
	types.SortTokenTypes(tts)
	b.Deltas = nil
	for _, tt := range tts {
		st, _ := tt.Shielded()
		b.Deltas = append(b.Deltas, shielded.Delta{Type: st, Value: new(big.Int).Set(bb.deltas[st])})
	}
	b.BindingRandomness = new(big.Int).Mod(bb.binding, bb.ped.Order())
	return &b
}
