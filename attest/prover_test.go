package attest

import (
	"math/big"
	"testing"
)

func balancedReport(session uint32) *Report {
	return &Report{Session: session, Entries: []Entry{
		{Token: "X", Withdrawn: big.NewInt(50), Paid: big.NewInt(50)},
		{Token: "Y", Withdrawn: big.NewInt(7), Paid: big.NewInt(7)},
	}}
}

func TestProveAndVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof generation in short mode")
	}
	p := NewProver()

	att, err := p.Prove(balancedReport(0))
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}
	if err := p.Verify(att); err != nil {
		t.Errorf("verify failed: %v", err)
	}
}

func TestProveRejectsUnbalanced(t *testing.T) {
	p := NewProver()
	r := balancedReport(0)
	r.Entries[0].Paid = big.NewInt(49)

	if _, err := p.Prove(r); err == nil {
		t.Error("unbalanced report proved")
	}
}

func TestProveRejectsEmptyReport(t *testing.T) {
	p := NewProver()
	if _, err := p.Prove(&Report{Session: 0}); err == nil {
		t.Error("empty report proved")
	}
}

func TestVerifyRejectsSwappedReport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof generation in short mode")
	}
	p := NewProver()

	att, err := p.Prove(balancedReport(0))
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}
	// The proof is bound to the original flows through the commitment; a
	// substituted report must not verify.
	att.Report = &Report{Session: 0, Entries: []Entry{
		{Token: "X", Withdrawn: big.NewInt(51), Paid: big.NewInt(51)},
		{Token: "Y", Withdrawn: big.NewInt(7), Paid: big.NewInt(7)},
	}}
	if err := p.Verify(att); err == nil {
		t.Error("swapped report verified")
	}
}

func TestProveBatchArbitraryJobIDs(t *testing.T) {
	p := NewProver()

	unbalanced := func() *Report {
		return &Report{Session: 0, Entries: []Entry{
			{Token: "X", Withdrawn: big.NewInt(1), Paid: big.NewInt(2)},
		}}
	}
	// Job ids are caller-chosen labels, not slice indexes.
	jobs := []Job{
		{ID: 7, Report: unbalanced()},
		{ID: 42, Report: unbalanced()},
	}
	results := p.ProveBatch(jobs, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != 7 || results[1].ID != 42 {
		t.Errorf("result ids = %d, %d, want 7, 42", results[0].ID, results[1].ID)
	}
	for i, res := range results {
		if res.Err == nil {
			t.Errorf("unbalanced job %d produced a proof", i)
		}
	}
}

func TestProveBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof generation in short mode")
	}
	p := NewProver()

	jobs := []Job{
		{ID: 0, Report: balancedReport(0)},
		{ID: 1, Report: balancedReport(1)},
		{ID: 2, Report: &Report{Session: 2, Entries: []Entry{
			{Token: "X", Withdrawn: big.NewInt(1), Paid: big.NewInt(2)},
		}}},
	}
	results := p.ProveBatch(jobs, 2)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Errorf("balanced jobs failed: %v, %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil {
		t.Error("unbalanced job produced a proof")
	}
	for _, res := range results[:2] {
		if err := p.Verify(res.Attestation); err != nil {
			t.Errorf("job %d verify failed: %v", res.ID, err)
		}
	}
}
