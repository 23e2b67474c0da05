package accountant

import "time"

// Op names a ledger operation for recording purposes.
type Op string

const (
	OpLock             Op = "lock"
	OpSettle           Op = "settle"
	OpAbort            Op = "abort"
	OpForward          Op = "forward"
	OpWithdraw         Op = "withdraw"
	OpPay              Op = "pay"
	OpPayFrom          Op = "payFrom"
	OpStartPayments    Op = "startPayments"
	OpCompletePayments Op = "completePayments"
)

// Record is one journal entry describing a ledger operation. Amount is a
// decimal string so records serialize without width concerns; it is empty
// for operations that move no value.
type Record struct {
	Invocation string    `json:"invocation"`
	Session    uint32    `json:"session"`
	Depth      int       `json:"depth"`
	Op         Op        `json:"op"`
	Actor      Account   `json:"actor,omitempty"`
	Token      Token     `json:"token,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Err        string    `json:"err,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder receives records as operations execute. Implementations must
// treat records as fire-and-forget: the accountant ignores recording
// failures and never blocks settlement on them.
type Recorder interface {
	Record(r Record)
}
