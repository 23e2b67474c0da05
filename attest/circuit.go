// Package attest produces zero-knowledge attestations that a settlement
// report is balanced: for every token the report covers, the withdrawn
// total equals the paid total. The proof carries a MiMC commitment to the
// session id and the per-token flows as its public input, so a verifier
// learns that settlement balanced without seeing the flows themselves.
package attest

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	frmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Entry is one token's net flow in a settlement report.
type Entry struct {
	Token     string
	Withdrawn *big.Int
	Paid      *big.Int
}

// Report describes a settled session: the session id and the total
// withdrawn/paid per touched token.
type Report struct {
	Session uint32
	Entries []Entry
}

// Balanced reports whether every entry's withdrawn total equals its paid
// total. The circuit proves exactly this property.
func (r *Report) Balanced() bool {
	for _, e := range r.Entries {
		if e.Withdrawn.Cmp(e.Paid) != 0 {
			return false
		}
	}
	return true
}

// Commitment computes the MiMC commitment over the session id and each
// entry's withdrawn amount. It matches the in-circuit hash.
func (r *Report) Commitment() (*big.Int, error) {
	h := frmimc.NewMiMC()

	var el fr.Element
	el.SetUint64(uint64(r.Session))
	b := el.Bytes()
	if _, err := h.Write(b[:]); err != nil {
		return nil, fmt.Errorf("hashing session: %w", err)
	}
	for _, e := range r.Entries {
		if e.Withdrawn.Sign() < 0 || e.Paid.Sign() < 0 {
			return nil, fmt.Errorf("negative flow for token %s", e.Token)
		}
		el.SetBigInt(e.Withdrawn)
		b = el.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("hashing flow for %s: %w", e.Token, err)
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// SettlementCircuit asserts Withdrawn[i] == Paid[i] for every entry and
// binds the flows to the public commitment.
type SettlementCircuit struct {
	Session    frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`

	Withdrawn []frontend.Variable
	Paid      []frontend.Variable
}

// Define declares the settlement constraints.
func (c *SettlementCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Session)
	for i := range c.Withdrawn {
		api.AssertIsEqual(c.Withdrawn[i], c.Paid[i])
		h.Write(c.Withdrawn[i])
	}
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}

// newCircuit allocates a circuit shape for the given entry count.
func newCircuit(entries int) *SettlementCircuit {
	return &SettlementCircuit{
		Withdrawn: make([]frontend.Variable, entries),
		Paid:      make([]frontend.Variable, entries),
	}
}

// assignment builds the witness assignment for a report.
func assignment(r *Report) (*SettlementCircuit, error) {
	commitment, err := r.Commitment()
	if err != nil {
		return nil, err
	}
	c := newCircuit(len(r.Entries))
	c.Session = uint64(r.Session)
	c.Commitment = commitment
	for i, e := range r.Entries {
		c.Withdrawn[i] = e.Withdrawn
		c.Paid[i] = e.Paid
	}
	return c, nil
}
