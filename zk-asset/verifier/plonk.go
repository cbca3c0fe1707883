package verifier

import (
	"bytes"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
)

// Plonk verifies spend and output proofs produced against Keys.
type Plonk struct {
	spendVK  plonk.VerifyingKey
	outputVK plonk.VerifyingKey
}

var _ Verifier = (*Plonk)(nil)

func NewPlonk(keys *Keys) *Plonk {
	return &Plonk{spendVK: keys.SpendVK, outputVK: keys.OutputVK}
}

func (p *Plonk) Verify(st Statement, bzProof []byte) bool {
	return p.verify(st, bzProof) == nil
}

func (p *Plonk) verify(st Statement, bzProof []byte) error {
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewBuffer(bzProof)); err != nil {
		return err
	}

	var (
		assignment frontend.Circuit
		vk         plonk.VerifyingKey
	)
	switch st.Kind {
	case KindSpend:
		c := &SpendCircuit{}
		c.AssignPublic(st)
		assignment, vk = c, p.spendVK
	default:
		c := &OutputCircuit{}
		c.AssignPublic(st)
		assignment, vk = c, p.outputVK
	}

	pubWtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	return plonk.Verify(proof, vk, pubWtn)
}
