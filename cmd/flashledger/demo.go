package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
	"github.com/flowpoint-xyz/go-flashledger/journal"
)

// demo runs a small multi-party scenario against an in-memory token
// store: a balanced flash loan, a forwarded withdrawal repaid by the
// original controller, and a deliberately underpaid session that aborts.
func demo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	jsonlOut := fs.String("jsonl", "", "write the journal to a JSONL file")
	dbOut := fs.String("db", "", "append the journal to a SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	const (
		tokenX = accountant.Token("tokenX")
		alice  = accountant.Account("alice")
		bob    = accountant.Account("bob")
		vault  = accountant.Account("vault")
	)

	store := accountant.NewMemoryStore()
	if err := store.Mint(tokenX, vault, uint256.NewInt(1000)); err != nil {
		return err
	}
	if err := store.Mint(tokenX, alice, uint256.NewInt(100)); err != nil {
		return err
	}

	// Records flow through an async mailbox so the ledger never waits on
	// the journal.
	j := journal.New()
	rec := journal.NewAsyncRecorder(j, 256)
	rec.Start()
	defer rec.Stop()
	acct := accountant.New(vault, store, accountant.WithRecorder(rec))

	// Balanced flash loan: withdraw 50, repay in two payments.
	loan := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(50)); err != nil {
			return nil, err
		}
		if err := acct.Pay(alice, tokenX, uint256.NewInt(30)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(20))
	})
	if _, err := acct.Lock(loan, nil); err != nil {
		return fmt.Errorf("flash loan: %w", err)
	}
	log.Info().Msg("flash loan settled")

	// Forwarded withdrawal: bob withdraws inside alice's session, alice repays.
	borrower := accountant.NewForwardeeFunc(bob, acct, func(_ accountant.Account, _ []byte) ([]byte, error) {
		return nil, acct.Withdraw(bob, tokenX, bob, uint256.NewInt(1))
	})
	forwarded := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if _, err := acct.Forward(alice, borrower, nil); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(1))
	})
	if _, err := acct.Lock(forwarded, nil); err != nil {
		return fmt.Errorf("forwarded session: %w", err)
	}
	log.Info().Msg("forwarded session settled")

	// Underpaid session: withdraws 10, repays 4, aborts with rollback.
	underpaid := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(10)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(4))
	})
	if _, err := acct.Lock(underpaid, nil); err == nil {
		return fmt.Errorf("underpaid session unexpectedly settled")
	} else {
		log.Info().Err(err).Msg("underpaid session aborted as expected")
	}

	// Flush the mailbox before reading the journal back.
	rec.Stop()

	fmt.Println(j.Summarize())
	fmt.Printf("vault custody of %s: %s\n", tokenX, acct.Custody(tokenX).Dec())

	if *jsonlOut != "" {
		if err := j.SaveJSONL(*jsonlOut); err != nil {
			return err
		}
		log.Info().Str("file", *jsonlOut).Msg("journal written")
	}
	if *dbOut != "" {
		db, err := journal.OpenStore(*dbOut)
		if err != nil {
			return err
		}
		defer db.Close()
		for _, inv := range j.Invocations() {
			if err := db.Append(context.Background(), inv.Records); err != nil {
				return err
			}
		}
		log.Info().Str("file", *dbOut).Msg("journal appended to database")
	}
	return nil
}
