package verifier

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"golang.org/x/sync/errgroup"
)

type Kind uint8

const (
	KindSpend Kind = iota
	KindOutput
)

func (k Kind) String() string {
	if k == KindSpend {
		return "spend"
	}
	return "output"
}

// Statement is the public part of a spend or output proof.
type Statement struct {
	Kind            Kind
	Segment         types.Segment
	Nullifier       types.Nullifier
	MerkleRoot      common.Hash
	Commitment      types.Commitment
	ValueCommitment crypto.ValueCommitment
	Contract        *types.ContractAddress
}

func InputStatement(seg types.Segment, in *shielded.Input) Statement {
	return Statement{
		Kind:            KindSpend,
		Segment:         seg,
		Nullifier:       in.Nullifier,
		MerkleRoot:      in.MerkleRoot,
		ValueCommitment: in.ValueCommitment,
		Contract:        in.Contract,
	}
}

func OutputStatement(seg types.Segment, out *shielded.Output) Statement {
	return Statement{
		Kind:            KindOutput,
		Segment:         seg,
		Commitment:      out.Commitment,
		ValueCommitment: out.ValueCommitment,
		Contract:        out.Contract,
	}
}

// TransientStatements returns the spend statement, proven against the
// one-leaf root, and the output statement of tr.
func TransientStatements(seg types.Segment, tr *shielded.Transient) (Statement, Statement) {
	spend := Statement{
		Kind:            KindSpend,
		Segment:         seg,
		Nullifier:       tr.Nullifier,
		MerkleRoot:      tr.InputRoot,
		ValueCommitment: tr.ValueCommitmentInput,
		Contract:        tr.Contract,
	}
	output := Statement{
		Kind:            KindOutput,
		Segment:         seg,
		Commitment:      tr.Commitment,
		ValueCommitment: tr.ValueCommitmentOutput,
		Contract:        tr.Contract,
	}
	return spend, output
}

// Verifier is the proof predicate. A false result is final.
type Verifier interface {
	Verify(st Statement, proof []byte) bool
}

// Func adapts a function to Verifier.
type Func func(st Statement, proof []byte) bool

func (f Func) Verify(st Statement, proof []byte) bool {
	return f(st, proof)
}

// AcceptAll accepts every proof.
var AcceptAll Verifier = Func(func(Statement, []byte) bool { return true })

// Job is one proof of a bundle. Field and Index locate it for errors.
type Job struct {
	Statement Statement
	Proof     []byte
	Field     string
	Index     int
}

// BundleJobs lists every proof carried by b, in bundle order.
func BundleJobs(b *shielded.Bundle) []Job {
	jobs := make([]Job, 0, len(b.Inputs)+len(b.Outputs)+2*len(b.Transients))
	for i, in := range b.Inputs {
		jobs = append(jobs, Job{Statement: InputStatement(b.Segment, in), Proof: in.Proof, Field: "input", Index: i})
	}
	for i, out := range b.Outputs {
		jobs = append(jobs, Job{Statement: OutputStatement(b.Segment, out), Proof: out.Proof, Field: "output", Index: i})
	}
	for i, tr := range b.Transients {
		spend, output := TransientStatements(b.Segment, tr)
		jobs = append(jobs,
			Job{Statement: spend, Proof: tr.InputProof, Field: "transient input", Index: i},
			Job{Statement: output, Proof: tr.OutputProof, Field: "transient output", Index: i},
		)
	}
	return jobs
}

// VerifyBatch verifies jobs on up to workers goroutines. When several
// proofs fail, the error reports the first failing job in order.
func VerifyBatch(ctx context.Context, v Verifier, jobs []Job, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	results := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = v.Verify(jobs[i].Statement, jobs[i].Proof)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, ok := range results {
		if !ok {
			return &types.InvalidProofError{
				Segment: jobs[i].Statement.Segment,
				Kind:    jobs[i].Field,
				Index:   jobs[i].Index,
			}
		}
	}
	return nil
}
