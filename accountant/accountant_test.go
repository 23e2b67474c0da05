package accountant_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

const (
	tokenX = accountant.Token("X")
	tokenY = accountant.Token("Y")
	vault  = accountant.Account("vault")
	alice  = accountant.Account("alice")
	bob    = accountant.Account("bob")
	carol  = accountant.Account("carol")
)

func newTestAccountant(t *testing.T, opts ...accountant.Option) (*accountant.Accountant, *accountant.MemoryStore) {
	t.Helper()
	store := accountant.NewMemoryStore()
	if err := store.Mint(tokenX, vault, uint256.NewInt(1000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := store.Mint(tokenX, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	return accountant.New(vault, store, opts...), store
}

func TestFlashLoanSettles(t *testing.T) {
	acct, store := newTestAccountant(t)

	locker := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 0 {
			t.Errorf("root session id = %d, want 0", session)
		}
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(50)); err != nil {
			return nil, err
		}
		if got := acct.Debt(session, tokenX); got.Uint64() != 50 {
			t.Errorf("debt after withdraw = %s, want 50", got.Dec())
		}
		if err := acct.Pay(alice, tokenX, uint256.NewInt(30)); err != nil {
			return nil, err
		}
		return []byte("ok"), acct.Pay(alice, tokenX, uint256.NewInt(20))
	})

	out, err := acct.Lock(locker, nil)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if string(out) != "ok" {
		t.Errorf("lock result = %q, want ok", out)
	}
	if got := store.BalanceOf(tokenX, vault); got.Uint64() != 1000 {
		t.Errorf("custody after settle = %s, want 1000", got.Dec())
	}
	if acct.Depth() != 0 {
		t.Errorf("stack depth after settle = %d, want 0", acct.Depth())
	}
}

func TestUnderpaymentAbortsAndRollsBack(t *testing.T) {
	acct, store := newTestAccountant(t)

	locker := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(50)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(20))
	})

	_, err := acct.Lock(locker, nil)
	if !errors.Is(err, accountant.ErrDebtsNotZeroed) {
		t.Fatalf("lock error = %v, want ErrDebtsNotZeroed", err)
	}
	var dnz *accountant.DebtsNotZeroedError
	if !errors.As(err, &dnz) {
		t.Fatalf("error %v does not carry DebtsNotZeroedError", err)
	}
	if dnz.Session != 0 {
		t.Errorf("failing session = %d, want 0", dnz.Session)
	}

	// Full rollback: no custody or participant balance moved.
	if got := store.BalanceOf(tokenX, vault); got.Uint64() != 1000 {
		t.Errorf("custody after abort = %s, want 1000", got.Dec())
	}
	if got := store.BalanceOf(tokenX, alice); got.Uint64() != 100 {
		t.Errorf("alice balance after abort = %s, want 100", got.Dec())
	}
	if acct.Depth() != 0 {
		t.Errorf("stack depth after abort = %d, want 0", acct.Depth())
	}
}

func TestForwardSharesSessionAndDebt(t *testing.T) {
	acct, _ := newTestAccountant(t)

	var outerSession uint32
	forwardee := accountant.NewForwardeeFunc(bob, acct, func(original accountant.Account, _ []byte) ([]byte, error) {
		if original != alice {
			t.Errorf("original controller = %q, want alice", original)
		}
		sess, err := acct.CurrentSession()
		if err != nil {
			return nil, err
		}
		if sess.ID != outerSession {
			t.Errorf("forward changed session id: %d != %d", sess.ID, outerSession)
		}
		if sess.Controller != bob {
			t.Errorf("controller during forward = %q, want bob", sess.Controller)
		}
		return nil, acct.Withdraw(bob, tokenX, bob, uint256.NewInt(1))
	})

	locker := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		outerSession = session
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(3)); err != nil {
			return nil, err
		}
		if _, err := acct.Forward(alice, forwardee, nil); err != nil {
			return nil, err
		}
		// Controller restored after the forward.
		sess, err := acct.CurrentSession()
		if err != nil {
			return nil, err
		}
		if sess.Controller != alice {
			t.Errorf("controller after forward = %q, want alice", sess.Controller)
		}
		// Debt is one continuous ledger across the forward boundary.
		if got := acct.Debt(session, tokenX); got.Uint64() != 4 {
			t.Errorf("combined debt = %s, want 4", got.Dec())
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(4))
	})

	if _, err := acct.Lock(locker, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

func TestNestedSessionIDs(t *testing.T) {
	acct, _ := newTestAccountant(t)

	inner := accountant.NewLockerFunc(bob, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 1 {
			t.Errorf("nested session id = %d, want 1", session)
		}
		return nil, nil
	})
	outer := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 0 {
			t.Errorf("root session id = %d, want 0", session)
		}
		_, err := acct.Lock(inner, nil)
		return nil, err
	})

	if _, err := acct.Lock(outer, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

func TestSiblingSessionsReuseIDCleanly(t *testing.T) {
	acct, _ := newTestAccountant(t)

	balanced := accountant.NewLockerFunc(bob, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 1 {
			t.Errorf("first child session id = %d, want 1", session)
		}
		if err := acct.Withdraw(bob, tokenX, bob, uint256.NewInt(7)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(bob, tokenX, uint256.NewInt(7))
	})
	sibling := accountant.NewLockerFunc(carol, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 1 {
			t.Errorf("sibling session id = %d, want 1", session)
		}
		// Reused id starts from a clean ledger.
		if got := acct.Debt(session, tokenX); !got.IsZero() {
			t.Errorf("reused session has stale debt %s", got.Dec())
		}
		return nil, nil
	})
	root := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		if _, err := acct.Lock(balanced, nil); err != nil {
			return nil, err
		}
		_, err := acct.Lock(sibling, nil)
		return nil, err
	})

	if _, err := acct.Lock(root, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

func TestDeepNestingSingleUnderpayment(t *testing.T) {
	const depth = 32
	const badLevel = 17

	acct, store := newTestAccountant(t)

	var lockers [depth]*accountant.LockerFunc
	for i := depth - 1; i >= 0; i-- {
		level := i
		next := func() *accountant.LockerFunc {
			if level+1 < depth {
				return lockers[level+1]
			}
			return nil
		}
		identity := accountant.Account(fmt.Sprintf("participant-%d", level))
		lockers[level] = accountant.NewLockerFunc(identity, acct, func(session uint32, _ []byte) ([]byte, error) {
			if int(session) != level {
				t.Errorf("session id = %d at level %d", session, level)
			}
			if err := acct.Withdraw(identity, tokenX, identity, uint256.NewInt(10)); err != nil {
				return nil, err
			}
			if inner := next(); inner != nil {
				if _, err := acct.Lock(inner, nil); err != nil {
					return nil, err
				}
			}
			repay := uint64(10)
			if level == badLevel {
				repay = 9
			}
			return nil, acct.Pay(identity, tokenX, uint256.NewInt(repay))
		})
	}

	_, err := acct.Lock(lockers[0], nil)
	var dnz *accountant.DebtsNotZeroedError
	if !errors.As(err, &dnz) {
		t.Fatalf("lock error = %v, want DebtsNotZeroedError", err)
	}
	if int(dnz.Session) != badLevel {
		t.Errorf("failing session = %d, want %d", dnz.Session, badLevel)
	}

	// All 32 levels' effects roll back together.
	if got := store.BalanceOf(tokenX, vault); got.Uint64() != 1000 {
		t.Errorf("custody after abort = %s, want 1000", got.Dec())
	}
	for i := 0; i < depth; i++ {
		identity := accountant.Account(fmt.Sprintf("participant-%d", i))
		if got := store.BalanceOf(tokenX, identity); !got.IsZero() {
			t.Errorf("participant %d kept %s after abort", i, got.Dec())
		}
	}
}

func TestParentSwallowingChildFailureAborts(t *testing.T) {
	acct, store := newTestAccountant(t)

	child := accountant.NewLockerFunc(bob, acct, func(_ uint32, _ []byte) ([]byte, error) {
		// Withdraws without repaying, so the child's settlement check fails.
		return nil, acct.Withdraw(bob, tokenX, bob, uint256.NewInt(50))
	})
	parent := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		// Discards the child's settlement failure and reports success.
		acct.Lock(child, nil)
		return []byte("ok"), nil
	})

	out, err := acct.Lock(parent, nil)
	if !errors.Is(err, accountant.ErrSessionNotResolved) {
		t.Fatalf("lock error = %v, want ErrSessionNotResolved", err)
	}
	if out != nil {
		t.Errorf("failed invocation returned output %q", out)
	}

	// The child's unsettled withdrawal must not survive.
	if got := store.BalanceOf(tokenX, vault); got.Uint64() != 1000 {
		t.Errorf("custody = %s, want 1000", got.Dec())
	}
	if got := store.BalanceOf(tokenX, bob); !got.IsZero() {
		t.Errorf("bob kept %s after abort", got.Dec())
	}
	if acct.Depth() != 0 {
		t.Errorf("stack depth = %d, want 0", acct.Depth())
	}

	// The stranded frame must not poison a later invocation.
	balanced := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if session != 0 {
			t.Errorf("root session id = %d, want 0", session)
		}
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(5)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(5))
	})
	if _, err := acct.Lock(balanced, nil); err != nil {
		t.Fatalf("lock after abort failed: %v", err)
	}
}

func TestRootLocksFromOtherGoroutinesSerialize(t *testing.T) {
	acct, _ := newTestAccountant(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var intruderRan atomic.Bool

	intruder := accountant.NewLockerFunc(bob, acct, func(session uint32, _ []byte) ([]byte, error) {
		intruderRan.Store(true)
		// A foreign goroutine's Lock is its own invocation, never a frame
		// inside someone else's.
		if session != 0 {
			t.Errorf("intruder session id = %d, want 0", session)
		}
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-entered
		if _, err := acct.Lock(intruder, nil); err != nil {
			t.Errorf("intruder lock failed: %v", err)
		}
	}()
	go func() {
		<-entered
		time.Sleep(50 * time.Millisecond)
		if intruderRan.Load() {
			t.Error("lock from a second goroutine ran inside the open invocation")
		}
		close(release)
	}()

	holder := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		close(entered)
		<-release
		return nil, nil
	})
	if _, err := acct.Lock(holder, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	<-done
	if !intruderRan.Load() {
		t.Error("intruder invocation never ran")
	}
}

func TestInvocationAfterAbortStartsClean(t *testing.T) {
	acct, store := newTestAccountant(t)

	failing := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		return nil, acct.Withdraw(alice, tokenX, alice, uint256.NewInt(5))
	})
	if _, err := acct.Lock(failing, nil); err == nil {
		t.Fatal("unsettled session unexpectedly succeeded")
	}

	balanced := accountant.NewLockerFunc(alice, acct, func(session uint32, _ []byte) ([]byte, error) {
		if got := acct.Debt(session, tokenX); !got.IsZero() {
			t.Errorf("new invocation has stale debt %s", got.Dec())
		}
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(5)); err != nil {
			return nil, err
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(5))
	})
	if _, err := acct.Lock(balanced, nil); err != nil {
		t.Fatalf("lock after abort failed: %v", err)
	}
	if got := store.BalanceOf(tokenX, vault); got.Uint64() != 1000 {
		t.Errorf("custody = %s, want 1000", got.Dec())
	}
}

func TestPayFromUsesAllowance(t *testing.T) {
	acct, store := newTestAccountant(t)
	store.Mint(tokenX, carol, uint256.NewInt(50))
	store.Approve(tokenX, carol, alice, uint256.NewInt(20))

	locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(20)); err != nil {
			return nil, err
		}
		return nil, acct.PayFrom(alice, carol, tokenX, uint256.NewInt(20))
	})
	if _, err := acct.Lock(locker, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if got := store.BalanceOf(tokenX, carol); got.Uint64() != 30 {
		t.Errorf("carol balance = %s, want 30", got.Dec())
	}
	if got := store.BalanceOf(tokenX, alice); got.Uint64() != 120 {
		t.Errorf("alice balance = %s, want 120", got.Dec())
	}
}

func TestPayFromWithoutAllowanceFails(t *testing.T) {
	acct, store := newTestAccountant(t)
	store.Mint(tokenX, carol, uint256.NewInt(50))

	locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(10)); err != nil {
			return nil, err
		}
		return nil, acct.PayFrom(alice, carol, tokenX, uint256.NewInt(10))
	})
	_, err := acct.Lock(locker, nil)
	if !errors.Is(err, accountant.ErrTransferFailed) {
		t.Errorf("lock error = %v, want ErrTransferFailed", err)
	}
}

func TestAccessChecks(t *testing.T) {
	acct, _ := newTestAccountant(t)

	t.Run("NoActiveSession", func(t *testing.T) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(1)); !errors.Is(err, accountant.ErrNoActiveSession) {
			t.Errorf("withdraw with empty stack: got %v, want ErrNoActiveSession", err)
		}
		if err := acct.Pay(alice, tokenX, uint256.NewInt(1)); !errors.Is(err, accountant.ErrNoActiveSession) {
			t.Errorf("pay with empty stack: got %v, want ErrNoActiveSession", err)
		}
	})

	t.Run("NotCurrentController", func(t *testing.T) {
		locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
			if err := acct.Withdraw(bob, tokenX, bob, uint256.NewInt(1)); !errors.Is(err, accountant.ErrNotCurrentController) {
				t.Errorf("withdraw by non-controller: got %v, want ErrNotCurrentController", err)
			}
			return nil, nil
		})
		if _, err := acct.Lock(locker, nil); err != nil {
			t.Fatalf("lock failed: %v", err)
		}
	})

	t.Run("AccountantOnly", func(t *testing.T) {
		locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
			return nil, nil
		})
		if _, err := locker.HandleLockData("mallory", 0, nil); !errors.Is(err, accountant.ErrAccountantOnly) {
			t.Errorf("forged lock callback: got %v, want ErrAccountantOnly", err)
		}
		forwardee := accountant.NewForwardeeFunc(bob, acct, func(_ accountant.Account, _ []byte) ([]byte, error) {
			return nil, nil
		})
		if _, err := forwardee.HandleForwardData("mallory", alice, nil); !errors.Is(err, accountant.ErrAccountantOnly) {
			t.Errorf("forged forward callback: got %v, want ErrAccountantOnly", err)
		}
	})
}

func TestWithdrawGuards(t *testing.T) {
	acct, _ := newTestAccountant(t)

	locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(2000)); !errors.Is(err, accountant.ErrInsufficientCustody) {
			t.Errorf("withdraw beyond custody: got %v, want ErrInsufficientCustody", err)
		}
		huge := new(uint256.Int).Add(accountant.MaxAmount, uint256.NewInt(1))
		if err := acct.Withdraw(alice, tokenX, alice, huge); !errors.Is(err, accountant.ErrAmountOverflow) {
			t.Errorf("oversized amount: got %v, want ErrAmountOverflow", err)
		}
		return nil, nil
	})
	if _, err := acct.Lock(locker, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

func TestOverpaymentRejected(t *testing.T) {
	acct, _ := newTestAccountant(t)

	locker := accountant.NewLockerFunc(alice, acct, func(_ uint32, _ []byte) ([]byte, error) {
		if err := acct.Withdraw(alice, tokenX, alice, uint256.NewInt(10)); err != nil {
			return nil, err
		}
		if err := acct.Pay(alice, tokenX, uint256.NewInt(20)); !errors.Is(err, accountant.ErrDebtOverpaid) {
			t.Errorf("overpayment: got %v, want ErrDebtOverpaid", err)
		}
		return nil, acct.Pay(alice, tokenX, uint256.NewInt(10))
	})
	if _, err := acct.Lock(locker, nil); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
}

func TestStackDepthLimit(t *testing.T) {
	acct, _ := newTestAccountant(t, accountant.WithMaxDepth(3))

	var depth int
	var recurse func() *accountant.LockerFunc
	recurse = func() *accountant.LockerFunc {
		level := depth
		depth++
		return accountant.NewLockerFunc(accountant.Account(fmt.Sprintf("p%d", level)), acct, func(_ uint32, _ []byte) ([]byte, error) {
			if level >= 5 {
				return nil, nil
			}
			_, err := acct.Lock(recurse(), nil)
			return nil, err
		})
	}

	_, err := acct.Lock(recurse(), nil)
	if !errors.Is(err, accountant.ErrStackExhausted) {
		t.Errorf("deep recursion: got %v, want ErrStackExhausted", err)
	}
	if acct.Depth() != 0 {
		t.Errorf("stack depth after abort = %d, want 0", acct.Depth())
	}
}
