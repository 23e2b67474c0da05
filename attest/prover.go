package attest

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover compiles settlement circuits and generates Groth16 proofs.
// Circuits are keyed by entry count and compiled lazily; compilation and
// setup dominate the cost, so compiled circuits are cached.
type Prover struct {
	mu       sync.RWMutex
	circuits map[int]*compiledCircuit
	curve    ecc.ID
}

type compiledCircuit struct {
	cs           constraint.ConstraintSystem
	provingKey   groth16.ProvingKey
	verifyingKey groth16.VerifyingKey
}

// Attestation is a generated proof with its public inputs.
type Attestation struct {
	Report *Report
	Proof  groth16.Proof
}

// NewProver creates a prover on BN254.
func NewProver() *Prover {
	return &Prover{
		circuits: make(map[int]*compiledCircuit),
		curve:    ecc.BN254,
	}
}

// compile returns the compiled circuit for the given entry count,
// compiling and running setup on first use.
func (p *Prover) compile(entries int) (*compiledCircuit, error) {
	p.mu.RLock()
	cc, ok := p.circuits[entries]
	p.mu.RUnlock()
	if ok {
		return cc, nil
	}

	cs, err := frontend.Compile(p.curve.ScalarField(), r1cs.NewBuilder, newCircuit(entries))
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	cc = &compiledCircuit{cs: cs, provingKey: pk, verifyingKey: vk}
	p.mu.Lock()
	p.circuits[entries] = cc
	p.mu.Unlock()
	return cc, nil
}

// Prove generates an attestation for the report. An unbalanced report
// fails at witness solving time; Prove rejects it up front with a clearer
// error.
func (p *Prover) Prove(report *Report) (*Attestation, error) {
	if len(report.Entries) == 0 {
		return nil, fmt.Errorf("empty report")
	}
	if !report.Balanced() {
		return nil, fmt.Errorf("report for session %d is not balanced", report.Session)
	}
	cc, err := p.compile(len(report.Entries))
	if err != nil {
		return nil, err
	}

	assign, err := assignment(report)
	if err != nil {
		return nil, err
	}
	witness, err := frontend.NewWitness(assign, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(cc.cs, cc.provingKey, witness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	return &Attestation{Report: report, Proof: proof}, nil
}

// Verify checks an attestation against its report's public inputs.
func (p *Prover) Verify(att *Attestation) error {
	cc, err := p.compile(len(att.Report.Entries))
	if err != nil {
		return err
	}
	assign, err := assignment(att.Report)
	if err != nil {
		return err
	}
	witness, err := frontend.NewWitness(assign, p.curve.ScalarField())
	if err != nil {
		return fmt.Errorf("witness creation failed: %w", err)
	}
	public, err := witness.Public()
	if err != nil {
		return fmt.Errorf("public witness extraction failed: %w", err)
	}
	return groth16.Verify(att.Proof, cc.verifyingKey, public)
}

// Job is one report in a batch proving run.
type Job struct {
	ID     int
	Report *Report
}

// JobResult is the outcome of one batch job.
type JobResult struct {
	ID          int
	Attestation *Attestation
	Err         error
}

// ProveBatch generates attestations for multiple reports concurrently.
// results[i] corresponds to jobs[i]; the job id is carried through
// untouched and never used for indexing.
func (p *Prover) ProveBatch(jobs []Job, maxWorkers int) []JobResult {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	results := make([]JobResult, len(jobs))
	jobChan := make(chan int, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				job := jobs[idx]
				att, err := p.Prove(job.Report)
				results[idx] = JobResult{ID: job.ID, Attestation: att, Err: err}
			}
		}()
	}
	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()
	return results
}
