package attest

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// FromRecords builds a settlement report for one session out of journal
// records: withdraw operations accumulate into Withdrawn, the pay
// operations into Paid. Records from other sessions are ignored.
func FromRecords(session uint32, records []accountant.Record) (*Report, error) {
	type flows struct {
		withdrawn *big.Int
		paid      *big.Int
	}
	byToken := make(map[string]*flows)
	var order []string

	get := func(token string) *flows {
		f, ok := byToken[token]
		if !ok {
			f = &flows{withdrawn: new(big.Int), paid: new(big.Int)}
			byToken[token] = f
			order = append(order, token)
		}
		return f
	}

	for _, r := range records {
		if r.Session != session || r.Token == "" || r.Amount == "" {
			continue
		}
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("record amount %q is not a decimal", r.Amount)
		}
		switch r.Op {
		case accountant.OpWithdraw:
			f := get(string(r.Token))
			f.withdrawn.Add(f.withdrawn, amount)
		case accountant.OpPay, accountant.OpPayFrom, accountant.OpCompletePayments:
			f := get(string(r.Token))
			f.paid.Add(f.paid, amount)
		}
	}

	sort.Strings(order)
	report := &Report{Session: session}
	for _, token := range order {
		f := byToken[token]
		report.Entries = append(report.Entries, Entry{
			Token:     token,
			Withdrawn: f.withdrawn,
			Paid:      f.paid,
		})
	}
	return report, nil
}
