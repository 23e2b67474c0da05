package main

import (
	"fmt"
	"strconv"

	"github.com/flowpoint-xyz/go-flashledger/attest"
	"github.com/flowpoint-xyz/go-flashledger/journal"
)

// journalSummary prints the summary of a JSONL journal file.
func journalSummary(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: flashledger journal <file.jsonl>")
	}
	j, err := journal.ParseJSONL(args[0])
	if err != nil {
		return err
	}
	fmt.Println(j.Summarize())
	for _, inv := range j.Invocations() {
		status := "settled"
		if inv.Aborted() {
			status = "aborted"
		}
		fmt.Printf("  %s  %-7s  records=%d depth=%d tokens=%v\n",
			inv.ID, status, len(inv.Records), inv.MaxDepth(), inv.Tokens())
	}
	return nil
}

// attestSession builds a settlement report for one session from the
// journal and generates plus verifies a balanced-settlement proof.
func attestSession(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: flashledger attest <file.jsonl> <session>")
	}
	session, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	j, err := journal.ParseJSONL(args[0])
	if err != nil {
		return err
	}

	prover := attest.NewProver()
	cache := attest.NewAttestationCache(0)
	for _, inv := range j.Invocations() {
		if inv.Aborted() {
			continue
		}
		report, err := attest.FromRecords(uint32(session), inv.Records)
		if err != nil {
			return err
		}
		if len(report.Entries) == 0 {
			continue
		}
		log.Info().Str("invocation", inv.ID).Uint64("session", session).Msg("proving settlement")
		att, err := cache.GetOrProve(prover, report)
		if err != nil {
			return err
		}
		if err := prover.Verify(att); err != nil {
			return err
		}
		commitment, err := report.Commitment()
		if err != nil {
			return err
		}
		fmt.Printf("invocation %s session %d: settlement proof verified (commitment %s)\n",
			inv.ID, session, commitment.Text(16))
	}
	if s := cache.Stats(); s.Hits > 0 {
		log.Info().Int64("hits", s.Hits).Int64("misses", s.Misses).Msg("attestation cache reused proofs")
	}
	return nil
}
