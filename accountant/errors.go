package accountant

import (
	"errors"
	"fmt"
)

var (
	// Session lifecycle errors
	ErrNoActiveSession      = errors.New("accountant: no active session")
	ErrNotCurrentController = errors.New("accountant: caller is not the current session controller")
	ErrStackExhausted       = errors.New("accountant: session stack depth exhausted")
	ErrDebtsNotZeroed       = errors.New("accountant: session debts not zeroed")
	ErrSessionNotResolved   = errors.New("accountant: nested session left unresolved")

	// Movement errors
	ErrInsufficientCustody = errors.New("accountant: insufficient custody balance")
	ErrTransferFailed      = errors.New("accountant: token transfer failed")
	ErrAmountOverflow      = errors.New("accountant: amount exceeds transfer width")
	ErrDebtOverpaid        = errors.New("accountant: payment exceeds registered debt")

	// Payment diffing errors
	ErrNoSnapshot       = errors.New("accountant: no payment snapshot for token")
	ErrBalanceDecreased = errors.New("accountant: custody balance decreased since snapshot")

	// Callback isolation
	ErrAccountantOnly = errors.New("accountant: callback may only be invoked by the accountant")
)

// DebtsNotZeroedError reports the session whose settlement check failed.
// It unwraps to ErrDebtsNotZeroed so callers can match either form.
type DebtsNotZeroedError struct {
	Session uint32
	Token   Token
}

func (e *DebtsNotZeroedError) Error() string {
	return fmt.Sprintf("accountant: session %d debts not zeroed (token %s)", e.Session, e.Token)
}

func (e *DebtsNotZeroedError) Unwrap() error { return ErrDebtsNotZeroed }
