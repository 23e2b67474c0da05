package accountant

import (
	"math/big"
)

// debtLedger records the signed per-token obligation of each open session.
// Positive debt means tokens left custody without being paid for. Payments
// that would push a token's debt below zero are rejected before they reach
// the ledger, so stored values are never negative; the signed accumulator
// keeps the arithmetic honest regardless.
type debtLedger struct {
	// debts[sessionID][token] -> signed accumulated amount
	debts map[uint32]map[Token]*big.Int
	// touched[sessionID] -> tokens used by the session, in first-touch order.
	// The settlement check only inspects this set; the token universe is
	// unbounded and cannot be scanned exhaustively.
	touched map[uint32][]Token
}

func newDebtLedger() *debtLedger {
	return &debtLedger{
		debts:   make(map[uint32]map[Token]*big.Int),
		touched: make(map[uint32][]Token),
	}
}

// debt returns the current signed debt for (session, token), creating the
// bucket and recording the touch on first use.
func (l *debtLedger) debt(session uint32, token Token) *big.Int {
	bucket, ok := l.debts[session]
	if !ok {
		bucket = make(map[Token]*big.Int)
		l.debts[session] = bucket
	}
	d, ok := bucket[token]
	if !ok {
		d = new(big.Int)
		bucket[token] = d
		l.touched[session] = append(l.touched[session], token)
	}
	return d
}

// peek returns the debt without recording a touch. Missing entries read
// as zero.
func (l *debtLedger) peek(session uint32, token Token) *big.Int {
	if bucket, ok := l.debts[session]; ok {
		if d, ok := bucket[token]; ok {
			return d
		}
	}
	return new(big.Int)
}

// add increases the session's debt for token by amount.
func (l *debtLedger) add(session uint32, token Token, amount *big.Int) {
	d := l.debt(session, token)
	d.Add(d, amount)
}

// reduce decreases the session's debt for token by amount. Reducing below
// zero is rejected with ErrDebtOverpaid; over-payment is not credited.
func (l *debtLedger) reduce(session uint32, token Token, amount *big.Int) error {
	d := l.debt(session, token)
	if d.Cmp(amount) < 0 {
		return ErrDebtOverpaid
	}
	d.Sub(d, amount)
	return nil
}

// settled reports whether every token touched by the session has exactly
// zero debt. On failure it returns the first offending token in touch order.
func (l *debtLedger) settled(session uint32) (Token, bool) {
	for _, token := range l.touched[session] {
		if l.debts[session][token].Sign() != 0 {
			return token, false
		}
	}
	return "", true
}

// clear drops all debt state for a session id. Called both on pop and on
// push, because depth-based ids are reused by sibling sessions and a fresh
// frame must never observe a predecessor's ledger.
func (l *debtLedger) clear(session uint32) {
	delete(l.debts, session)
	delete(l.touched, session)
}

// reset discards the entire ledger. Used on atomic abort.
func (l *debtLedger) reset() {
	l.debts = make(map[uint32]map[Token]*big.Int)
	l.touched = make(map[uint32][]Token)
}
