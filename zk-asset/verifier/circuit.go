package verifier

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	ecc_tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	std_tedwards "github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash"
	std_mimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/pkg/errors"
)

// ValueBits bounds coin values inside the circuits.
const ValueBits = 128

// MerkleDepth is the longest membership path the spend circuit accepts.
const MerkleDepth = 32

// ValueBaseWitness lets a circuit re-derive the value base of a token type.
// It mirrors crypto.ValueBaseHint.
type ValueBaseWitness struct {
	Counter     frontend.Variable
	X           frontend.Variable
	NonResidues [crypto.ValueBaseTries]frontend.Variable
}

// MerkleWitness is a membership path padded to MerkleDepth. Levels with
// Active unset are skipped; Left puts the sibling in front of the node.
type MerkleWitness struct {
	Siblings [MerkleDepth]frontend.Variable
	Left     [MerkleDepth]frontend.Variable
	Active   [MerkleDepth]frontend.Variable
}

// SpendCircuit proves that a coin committed under MerkleRoot is spent with
// the public nullifier and value commitment. Membership follows the MiMC
// tree, so proofs only verify against ledgers using the mimc tree hasher.
type SpendCircuit struct {
	Nullifier       frontend.Variable  `gnark:",public"`
	MerkleRoot      frontend.Variable  `gnark:",public"`
	ValueCommitment std_tedwards.Point `gnark:",public"`
	IsContract      frontend.Variable  `gnark:",public"`
	ContractID      frontend.Variable  `gnark:",public"`
	Segment         frontend.Variable  `gnark:",public"`

	Nonce     frontend.Variable
	Type      frontend.Variable
	Value     frontend.Variable
	Secret    frontend.Variable
	Blinding  frontend.Variable
	ValueBase ValueBaseWitness
	Path      MerkleWitness
}

func (cc *SpendCircuit) Define(api frontend.API) error {
	curve, err := std_tedwards.NewEdCurve(api, ecc_tedwards.BN254)
	if err != nil {
		return err
	}
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	api.AssertIsBoolean(cc.IsContract)
	// a contract coin is nullified with the contract address as secret
	api.AssertIsEqual(api.Mul(cc.IsContract, api.Sub(cc.Secret, cc.ContractID)), 0)

	hasher.Reset()
	hasher.Write(fieldConst(types.TagNullifier), cc.Nonce, cc.Type, cc.Value, cc.Secret)
	api.AssertIsEqual(cc.Nullifier, hasher.Sum())

	hasher.Reset()
	hasher.Write(fieldConst(types.TagPublicKey), cc.Secret)
	recipient := api.Select(cc.IsContract, cc.ContractID, hasher.Sum())

	hasher.Reset()
	hasher.Write(fieldConst(types.TagCommitment), cc.Nonce, cc.Type, cc.Value, cc.IsContract, recipient)
	verifyMerklePath(api, &hasher, cc.MerkleRoot, hasher.Sum(), &cc.Path)

	base := deriveValueBase(api, curve, &hasher, cc.Type, cc.Segment, &cc.ValueBase)
	assertValueCommitment(api, curve, cc.Value, cc.Blinding, base, cc.ValueCommitment)
	return nil
}

// OutputCircuit proves that the public coin commitment and value
// commitment open to the same coin.
type OutputCircuit struct {
	Commitment      frontend.Variable  `gnark:",public"`
	ValueCommitment std_tedwards.Point `gnark:",public"`
	IsContract      frontend.Variable  `gnark:",public"`
	ContractID      frontend.Variable  `gnark:",public"`
	Segment         frontend.Variable  `gnark:",public"`

	Nonce       frontend.Variable
	Type        frontend.Variable
	Value       frontend.Variable
	RecipientID frontend.Variable
	Blinding    frontend.Variable
	ValueBase   ValueBaseWitness
}

func (cc *OutputCircuit) Define(api frontend.API) error {
	curve, err := std_tedwards.NewEdCurve(api, ecc_tedwards.BN254)
	if err != nil {
		return err
	}
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	api.AssertIsBoolean(cc.IsContract)
	api.AssertIsEqual(api.Mul(cc.IsContract, api.Sub(cc.RecipientID, cc.ContractID)), 0)

	verifyCommitment(api, &hasher, cc.Commitment, cc.Nonce, cc.Type, cc.Value, cc.IsContract, cc.RecipientID)

	base := deriveValueBase(api, curve, &hasher, cc.Type, cc.Segment, &cc.ValueBase)
	assertValueCommitment(api, curve, cc.Value, cc.Blinding, base, cc.ValueCommitment)
	return nil
}

func verifyCommitment(api frontend.API, hasher hash.FieldHasher, cm, nonce, tt, value, kind, recipient frontend.Variable) {
	hasher.Reset()
	hasher.Write(fieldConst(types.TagCommitment), nonce, tt, value, kind, recipient)
	api.AssertIsEqual(cm, hasher.Sum())
}

// verifyMerklePath folds the leaf cm up the path and compares with root.
func verifyMerklePath(api frontend.API, hasher hash.FieldHasher, root, cm frontend.Variable, path *MerkleWitness) {
	hasher.Reset()
	hasher.Write(cm)
	sum := hasher.Sum()

	for i := range path.Siblings {
		api.AssertIsBoolean(path.Left[i])
		api.AssertIsBoolean(path.Active[i])

		l := api.Select(path.Left[i], path.Siblings[i], sum)
		r := api.Select(path.Left[i], sum, path.Siblings[i])
		hasher.Reset()
		hasher.Write(l, r)
		sum = api.Select(path.Active[i], hasher.Sum(), sum)
	}
	api.AssertIsEqual(sum, root)
}

// deriveValueBase repeats crypto.DeriveValueBase for (tt, seg). Every
// counter before the accepted one must carry a proof that its x^2 is not a
// square, so the prover cannot pick another candidate or another type's base.
func deriveValueBase(api frontend.API, curve std_tedwards.Curve, hasher hash.FieldHasher, tt, seg frontend.Variable, w *ValueBaseWitness) std_tedwards.Point {
	params := curve.Params()
	nr := crypto.NonResidue()
	nonResidue := nr.BigInt(new(big.Int))
	tag := fieldConst([]byte(crypto.ValueBaseTag))

	reached := frontend.Variable(0)
	y := frontend.Variable(0)
	for c := 0; c < crypto.ValueBaseTries; c++ {
		hasher.Reset()
		hasher.Write(tag, tt, seg, c)
		yc := hasher.Sum()

		yc2 := api.Mul(yc, yc)
		x2 := api.Div(api.Sub(1, yc2), api.Sub(params.A, api.Mul(params.D, yc2)))

		at := api.IsZero(api.Sub(w.Counter, c))
		reached = api.Add(reached, at)
		before := api.Sub(1, reached)

		nq := api.Sub(api.Mul(w.NonResidues[c], w.NonResidues[c]), api.Mul(nonResidue, x2))
		api.AssertIsEqual(api.Mul(before, nq), 0)
		api.AssertIsEqual(api.Mul(at, api.Sub(api.Mul(w.X, w.X), x2)), 0)

		y = api.Add(y, api.Mul(at, yc))
	}
	api.AssertIsEqual(reached, 1)

	xBits := api.ToBinary(w.X)
	api.AssertIsEqual(xBits[0], 0)

	p := std_tedwards.Point{X: w.X, Y: y}
	// cofactor 8
	return curve.Double(curve.Double(curve.Double(p)))
}

// assertValueCommitment checks vc == value*base + blinding*H with value
// in range.
func assertValueCommitment(api frontend.API, curve std_tedwards.Curve, value, blinding frontend.Variable, base, vc std_tedwards.Point) {
	_ = api.ToBinary(value, ValueBits)

	curve.AssertIsOnCurve(vc)

	h := crypto.BlindingBase()
	blindingBase := std_tedwards.Point{
		X: h.X.BigInt(new(big.Int)),
		Y: h.Y.BigInt(new(big.Int)),
	}

	vG := curve.ScalarMul(base, value)
	rH := curve.ScalarMul(blindingBase, blinding)
	computed := curve.Add(vG, rH)

	api.AssertIsEqual(vc.X, computed.X)
	api.AssertIsEqual(vc.Y, computed.Y)
}

func fieldConst(bz []byte) *big.Int {
	return new(big.Int).SetBytes(utils.FieldElement(bz))
}

// FieldVar reduces bz to a canonical witness value.
func FieldVar(bz []byte) *big.Int {
	return fieldConst(bz)
}

func PointVar(p tedwards.PointAffine) std_tedwards.Point {
	return std_tedwards.Point{
		X: p.X.BigInt(new(big.Int)),
		Y: p.Y.BigInt(new(big.Int)),
	}
}

func boolVar(b bool) int {
	if b {
		return 1
	}
	return 0
}

func contractVar(c *types.ContractAddress) *big.Int {
	if c == nil {
		return new(big.Int)
	}
	return FieldVar(c[:])
}

// AssignPublic sets the public inputs of the spend statement st.
func (cc *SpendCircuit) AssignPublic(st Statement) {
	cc.Nullifier = FieldVar(st.Nullifier[:])
	cc.MerkleRoot = FieldVar(st.MerkleRoot[:])
	cc.ValueCommitment = PointVar(st.ValueCommitment.Point())
	cc.IsContract = boolVar(st.Contract != nil)
	cc.ContractID = contractVar(st.Contract)
	cc.Segment = uint64(st.Segment)
}

// AssignPublic sets the public inputs of the output statement st.
func (cc *OutputCircuit) AssignPublic(st Statement) {
	cc.Commitment = FieldVar(st.Commitment[:])
	cc.ValueCommitment = PointVar(st.ValueCommitment.Point())
	cc.IsContract = boolVar(st.Contract != nil)
	cc.ContractID = contractVar(st.Contract)
	cc.Segment = uint64(st.Segment)
}

// ValueBaseVar assigns the derivation hint of a value base.
func ValueBaseVar(hint *crypto.ValueBaseHint) ValueBaseWitness {
	w := ValueBaseWitness{
		Counter: hint.Counter,
		X:       hint.X.BigInt(new(big.Int)),
	}
	for i := range hint.NonResidues {
		w.NonResidues[i] = hint.NonResidues[i].BigInt(new(big.Int))
	}
	return w
}

// MerkleVar pads the path steps to MerkleDepth.
func MerkleVar(steps []shielded.PathStep) (MerkleWitness, error) {
	var w MerkleWitness
	if len(steps) > MerkleDepth {
		return w, errors.Errorf("verifier: merkle path of %d levels exceeds %d", len(steps), MerkleDepth)
	}
	for i := range w.Siblings {
		w.Siblings[i], w.Left[i], w.Active[i] = 0, 0, 0
		if i < len(steps) {
			w.Siblings[i] = FieldVar(steps[i].Sibling)
			w.Left[i] = boolVar(steps[i].Left)
			w.Active[i] = 1
		}
	}
	return w, nil
}

// Keys holds the compiled circuits and their PLONK keys.
type Keys struct {
	SpendCCS  constraint.ConstraintSystem
	SpendPK   plonk.ProvingKey
	SpendVK   plonk.VerifyingKey
	OutputCCS constraint.ConstraintSystem
	OutputPK  plonk.ProvingKey
	OutputVK  plonk.VerifyingKey
}

// Setup compiles both circuits and runs the PLONK setup.
func Setup() (*Keys, error) {
	var err error
	keys := &Keys{}

	if keys.SpendCCS, keys.SpendPK, keys.SpendVK, err = compile(&SpendCircuit{}); err != nil {
		return nil, err
	}
	if keys.OutputCCS, keys.OutputPK, keys.OutputVK, err = compile(&OutputCircuit{}); err != nil {
		return nil, err
	}
	return keys, nil
}

func compile(circuit frontend.Circuit) (constraint.ConstraintSystem, plonk.ProvingKey, plonk.VerifyingKey, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, nil, err
	}

	// todo: Use safe SRS generation
	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, nil, nil, err
	}
	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, nil, nil, err
	}
	return ccs, pk, vk, nil
}
