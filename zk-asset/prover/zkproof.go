package prover

import (
	"bytes"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/verifier"
)

// ProveSpend proves knowledge of coin behind the spend statement st. steps
// lead from the coin commitment to st.MerkleRoot; a transient input has none.
func ProveSpend(
	keys *verifier.Keys,
	st verifier.Statement,
	coin *types.CoinInfo, secret [32]byte,
	blinding *big.Int, steps []shielded.PathStep,
) ([]byte, error) {
	path, err := verifier.MerkleVar(steps)
	if err != nil {
		return nil, err
	}
	_, hint := crypto.DeriveValueBase(coin.Type, st.Segment)

	var assignment verifier.SpendCircuit
	assignment.AssignPublic(st)
	assignment.Nonce = verifier.FieldVar(coin.Nonce[:])
	assignment.Type = verifier.FieldVar(coin.Type[:])
	assignment.Value = coin.Value.ToBig()
	assignment.Secret = verifier.FieldVar(secret[:])
	assignment.Blinding = blinding
	assignment.ValueBase = verifier.ValueBaseVar(hint)
	assignment.Path = path

	return prove(keys.SpendCCS, keys.SpendPK, &assignment)
}

// ProveOutput proves that the output statement st commits to coin for
// the recipient identified by recipientID.
func ProveOutput(
	keys *verifier.Keys,
	st verifier.Statement,
	coin *types.CoinInfo, recipientID [32]byte,
	blinding *big.Int,
) ([]byte, error) {
	_, hint := crypto.DeriveValueBase(coin.Type, st.Segment)

	var assignment verifier.OutputCircuit
	assignment.AssignPublic(st)
	assignment.Nonce = verifier.FieldVar(coin.Nonce[:])
	assignment.Type = verifier.FieldVar(coin.Type[:])
	assignment.Value = coin.Value.ToBig()
	assignment.RecipientID = verifier.FieldVar(recipientID[:])
	assignment.Blinding = blinding
	assignment.ValueBase = verifier.ValueBaseVar(hint)

	return prove(keys.OutputCCS, keys.OutputPK, &assignment)
}

func prove(ccs constraint.ConstraintSystem, pk plonk.ProvingKey, assignment frontend.Circuit) ([]byte, error) {
	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	proof, err := plonk.Prove(ccs, pk, wtn)
	if err != nil {
		return nil, err
	}

	bufProof := bytes.NewBuffer(nil)
	if _, err := proof.WriteTo(bufProof); err != nil {
		return nil, err
	}
	return bufProof.Bytes(), nil
}
