// Package accountant implements a flash-accounting session ledger: a
// call-stack of nested sessions over a shared token custody, where every
// session must net its per-token debt to zero before it may close.
//
// Participants open sessions with Lock, move value with Withdraw and the
// pay operations, and may let other participants act inside their open
// session with Forward. A failure anywhere in the call chain aborts the
// entire top-level invocation and discards all of its effects.
package accountant

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Accountant owns the locker stack, the debt ledger, and the payment
// snapshots. All mutation rights are checked at this API boundary: only
// the current top frame's controller may move value.
type Accountant struct {
	// mu serializes top-level invocations. Nested calls run on the same
	// goroutine inside the root Lock and never touch it; owner holds that
	// goroutine's id so a Lock from any other goroutine is treated as a
	// new top-level invocation and blocks on mu instead of joining the
	// open stack.
	mu    sync.Mutex
	owner atomic.Uint64

	identity  Account
	store     TokenStore
	stack     *lockerStack
	ledger    *debtLedger
	snapshots *paySnapshots
	recorder  Recorder

	// invocation is the id of the open top-level call, empty when idle.
	invocation string
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithMaxDepth overrides the session stack depth limit.
func WithMaxDepth(depth int) Option {
	return func(a *Accountant) { a.stack = newLockerStack(depth) }
}

// WithRecorder attaches a journal recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Accountant) { a.recorder = r }
}

// New creates an accountant acting as identity, holding custody inside
// store.
func New(identity Account, store TokenStore, opts ...Option) *Accountant {
	a := &Accountant{
		identity:  identity,
		store:     store,
		stack:     newLockerStack(DefaultMaxDepth),
		ledger:    newDebtLedger(),
		snapshots: newPaySnapshots(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Identity returns the account the accountant holds custody as.
func (a *Accountant) Identity() Account { return a.identity }

// CurrentSession returns the top frame of the locker stack.
func (a *Accountant) CurrentSession() (Session, error) {
	return a.stack.current()
}

// Depth returns the number of open sessions.
func (a *Accountant) Depth() int { return a.stack.depth() }

// Custody returns the accountant's own balance of token.
func (a *Accountant) Custody(token Token) *uint256.Int {
	return a.store.BalanceOf(token, a.identity)
}

// Lock opens a session for the locker and runs its callback. The root
// call opens an invocation: it snapshots the token store and, on any
// error from the call chain, restores the snapshot and resets all ledger
// state so no partial effect is observable. A Lock issued from inside an
// open invocation's callback chain nests; a Lock from any other
// goroutine starts its own invocation and waits its turn.
func (a *Accountant) Lock(l Locker, payload []byte) ([]byte, error) {
	if a.owner.Load() == goid() {
		return a.runSession(l, payload)
	}
	return a.rootLock(l, payload)
}

func (a *Accountant) rootLock(l Locker, payload []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owner.Store(goid())
	defer a.owner.Store(0)

	snap := a.store.Snapshot()
	a.invocation = uuid.NewString()

	out, err := a.runSession(l, payload)
	if err == nil && !a.stack.empty() {
		// A callback left frames open without surfacing the failure that
		// stranded them. The invocation did not resolve; treat it as such.
		err = ErrSessionNotResolved
	}
	if err != nil {
		a.abort(snap, err)
		a.invocation = ""
		return nil, err
	}
	a.invocation = ""
	return out, nil
}

// runSession pushes a frame, invokes the locker callback, and pops after
// the settlement check. On error the frame is left in place; the root
// abort tears the whole stack down.
func (a *Accountant) runSession(l Locker, payload []byte) ([]byte, error) {
	id, err := a.stack.push(l.Identity())
	if err != nil {
		return nil, err
	}
	// Depth-based ids are reused by sibling sessions; a fresh frame must
	// start from a clean ledger state.
	a.ledger.clear(id)
	a.snapshots.clear(id)
	a.record(OpLock, id, l.Identity(), "", nil, nil)

	out, err := l.HandleLockData(a.identity, id, payload)
	if err != nil {
		return nil, err
	}

	// The frame to pop must be the one pushed above. If the callback
	// opened a nested session, swallowed its failure, and returned nil,
	// the child frame is still on top with its debt unchecked; popping it
	// positionally would discharge debt that never settled.
	sess, err := a.stack.current()
	if err != nil {
		return nil, err
	}
	if sess.ID != id || sess.Controller != l.Identity() {
		return nil, ErrSessionNotResolved
	}

	if token, ok := a.ledger.settled(id); !ok {
		return nil, &DebtsNotZeroedError{Session: id, Token: token}
	}
	a.ledger.clear(id)
	a.snapshots.clear(id)
	if err := a.stack.pop(); err != nil {
		return nil, err
	}
	a.record(OpSettle, id, l.Identity(), "", nil, nil)
	return out, nil
}

// Forward substitutes the forwardee as the current session's controller,
// runs its callback, and restores the original controller. No new frame
// and no new debt bucket: the forwardee's debt changes accumulate into
// the same session ledger.
func (a *Accountant) Forward(caller Account, f Forwardee, payload []byte) ([]byte, error) {
	sess, err := a.requireController(caller)
	if err != nil {
		return nil, err
	}
	prev, err := a.stack.substituteController(f.Identity())
	if err != nil {
		return nil, err
	}
	a.record(OpForward, sess.ID, f.Identity(), "", nil, nil)

	out, cbErr := f.HandleForwardData(a.identity, prev, payload)

	// Restore unconditionally; on failure the whole invocation aborts
	// anyway, but the restore costs one assignment either way.
	if _, err := a.stack.substituteController(prev); err != nil {
		return nil, err
	}
	return out, cbErr
}

// Withdraw moves amount of token out of custody to recipient and
// increases the current session's debt by the same amount.
func (a *Accountant) Withdraw(caller Account, token Token, recipient Account, amount *uint256.Int) error {
	sess, err := a.requireController(caller)
	if err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrAmountOverflow
	}
	if a.store.BalanceOf(token, a.identity).Cmp(amount) < 0 {
		return ErrInsufficientCustody
	}
	if err := a.store.Transfer(token, a.identity, recipient, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	a.ledger.add(sess.ID, token, amount.ToBig())
	a.record(OpWithdraw, sess.ID, caller, token, amount, nil)
	return nil
}

// Pay pulls amount of token from the caller into custody and decreases
// the current session's debt. Paying more than the registered debt is
// rejected with ErrDebtOverpaid.
func (a *Accountant) Pay(caller Account, token Token, amount *uint256.Int) error {
	sess, err := a.requireController(caller)
	if err != nil {
		return err
	}
	if err := a.applyPayment(sess.ID, token, amount, func() error {
		return a.store.Transfer(token, caller, a.identity, amount)
	}); err != nil {
		return err
	}
	a.record(OpPay, sess.ID, caller, token, amount, nil)
	return nil
}

// PayFrom pulls amount of token from payer into custody using the
// allowance payer granted the caller, and decreases the current session's
// debt.
func (a *Accountant) PayFrom(caller Account, payer Account, token Token, amount *uint256.Int) error {
	sess, err := a.requireController(caller)
	if err != nil {
		return err
	}
	if err := a.applyPayment(sess.ID, token, amount, func() error {
		return a.store.TransferFrom(token, caller, payer, a.identity, amount)
	}); err != nil {
		return err
	}
	a.record(OpPayFrom, sess.ID, caller, token, amount, nil)
	return nil
}

// applyPayment validates amount against the transfer width and the
// registered debt, then moves the tokens and reduces the debt.
func (a *Accountant) applyPayment(session uint32, token Token, amount *uint256.Int, move func() error) error {
	if !validAmount(amount) {
		return ErrAmountOverflow
	}
	if a.ledger.peek(session, token).Cmp(amount.ToBig()) < 0 {
		return ErrDebtOverpaid
	}
	if err := move(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return a.ledger.reduce(session, token, amount.ToBig())
}

// StartPayments records the custody balance for each listed token and
// returns those balances. Participants then deposit directly into custody
// and call CompletePayments to have the deltas credited against debt.
func (a *Accountant) StartPayments(caller Account, tokens []Token) ([]*uint256.Int, error) {
	sess, err := a.requireController(caller)
	if err != nil {
		return nil, err
	}
	balances := make([]*uint256.Int, len(tokens))
	for i, token := range tokens {
		balance := a.store.BalanceOf(token, a.identity)
		a.snapshots.record(sess.ID, token, balance)
		balances[i] = balance
		a.record(OpStartPayments, sess.ID, caller, token, balance, nil)
	}
	return balances, nil
}

// CompletePayments computes the custody balance delta for each token
// since its StartPayments snapshot, credits positive deltas against the
// session's debt, and returns the per-token paid amounts. A decreased
// balance fails closed; it never wraps into a payment.
func (a *Accountant) CompletePayments(caller Account, tokens []Token) ([]*uint256.Int, error) {
	sess, err := a.requireController(caller)
	if err != nil {
		return nil, err
	}
	paid := make([]*uint256.Int, len(tokens))
	for i, token := range tokens {
		snapBalance, err := a.snapshots.take(sess.ID, token)
		if err != nil {
			return nil, err
		}
		current := a.store.BalanceOf(token, a.identity)
		if current.Cmp(snapBalance) < 0 {
			return nil, ErrBalanceDecreased
		}
		delta := new(uint256.Int).Sub(current, snapBalance)
		if !validAmount(delta) {
			return nil, ErrAmountOverflow
		}
		if !delta.IsZero() {
			if err := a.ledger.reduce(sess.ID, token, delta.ToBig()); err != nil {
				return nil, err
			}
		}
		paid[i] = delta
		a.record(OpCompletePayments, sess.ID, caller, token, delta, nil)
	}
	return paid, nil
}

// Debt returns the current debt of a session for token. Zero for
// untouched tokens. Debt is bounded by the custody ever available, itself
// a uint256, so the value always fits; if the ledger were ever corrupted
// past that width the read saturates rather than reading as settled.
func (a *Accountant) Debt(session uint32, token Token) *uint256.Int {
	d := a.ledger.peek(session, token)
	out, overflow := uint256.FromBig(d)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// requireController fails unless the stack is non-empty and caller is the
// top frame's current controller.
func (a *Accountant) requireController(caller Account) (Session, error) {
	sess, err := a.stack.current()
	if err != nil {
		return Session{}, err
	}
	if sess.Controller != caller {
		return Session{}, ErrNotCurrentController
	}
	return sess, nil
}

// abort restores the token store snapshot and discards all transient
// ledger state. Nothing from the failed invocation remains observable.
func (a *Accountant) abort(snap StoreSnapshot, cause error) {
	a.store.Restore(snap)
	a.stack.reset()
	a.ledger.reset()
	a.snapshots.reset()
	a.record(OpAbort, 0, "", "", nil, cause)
}

// goid returns the current goroutine's id, parsed from the runtime stack
// header ("goroutine N [running]:"). Ids start at 1, so 0 is free to mean
// "no open invocation".
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := buf[len("goroutine "):n]
	var id uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

func (a *Accountant) record(op Op, session uint32, actor Account, token Token, amount *uint256.Int, cause error) {
	if a.recorder == nil {
		return
	}
	r := Record{
		Invocation: a.invocation,
		Session:    session,
		Depth:      a.stack.depth(),
		Op:         op,
		Actor:      actor,
		Token:      token,
		Timestamp:  time.Now().UTC(),
	}
	if amount != nil {
		r.Amount = amount.Dec()
	}
	if cause != nil {
		r.Err = cause.Error()
	}
	a.recorder.Record(r)
}
