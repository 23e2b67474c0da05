package accountant

import (
	"errors"

	"github.com/holiman/uint256"
)

// Token store errors. The accountant wraps these in ErrTransferFailed when
// they surface through pay paths.
var (
	ErrInsufficientBalance   = errors.New("accountant: insufficient token balance")
	ErrInsufficientAllowance = errors.New("accountant: insufficient token allowance")
	ErrBalanceOverflow       = errors.New("accountant: token balance overflow")
)

// TokenStore is the external balance book the accountant moves value
// through. The accountant owns no balances itself; its custody is its own
// account inside the store.
//
// Snapshot and Restore give the accountant the all-or-nothing execution
// model: a snapshot is taken when the root session opens and restored if
// any part of the call chain fails.
type TokenStore interface {
	// BalanceOf returns the balance of holder for token. Never nil.
	BalanceOf(token Token, holder Account) *uint256.Int

	// Transfer moves amount of token from one holder to another.
	Transfer(token Token, from, to Account, amount *uint256.Int) error

	// TransferFrom moves amount of token from owner to recipient using the
	// allowance owner granted to spender.
	TransferFrom(token Token, spender, owner, to Account, amount *uint256.Int) error

	// Approve grants spender an allowance over owner's balance of token.
	Approve(token Token, owner, spender Account, amount *uint256.Int)

	// Snapshot captures the full store state.
	Snapshot() StoreSnapshot

	// Restore replaces the store state with a previously taken snapshot.
	Restore(snap StoreSnapshot)
}

// StoreSnapshot is an opaque deep copy of a TokenStore's state.
type StoreSnapshot interface{}

// MemoryStore is the in-process TokenStore used by tests, the demo, and
// any embedding that does not bridge to an external balance book.
type MemoryStore struct {
	balances   map[Token]map[Account]*uint256.Int
	allowances map[Token]map[Account]map[Account]*uint256.Int
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:   make(map[Token]map[Account]*uint256.Int),
		allowances: make(map[Token]map[Account]map[Account]*uint256.Int),
	}
}

// Mint credits amount of token to holder out of thin air. Setup helper;
// not reachable through the accountant.
func (m *MemoryStore) Mint(token Token, holder Account, amount *uint256.Int) error {
	return m.credit(token, holder, amount)
}

// BalanceOf returns the balance of holder for token.
func (m *MemoryStore) BalanceOf(token Token, holder Account) *uint256.Int {
	if holders, ok := m.balances[token]; ok {
		if b, ok := holders[holder]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	return new(uint256.Int)
}

// Transfer moves amount of token from one holder to another.
func (m *MemoryStore) Transfer(token Token, from, to Account, amount *uint256.Int) error {
	if err := m.debit(token, from, amount); err != nil {
		return err
	}
	if err := m.credit(token, to, amount); err != nil {
		// Undo the debit so a failed transfer leaves no partial movement.
		_ = m.credit(token, from, amount)
		return err
	}
	return nil
}

// TransferFrom moves amount from owner to recipient against the allowance
// owner granted to spender.
func (m *MemoryStore) TransferFrom(token Token, spender, owner, to Account, amount *uint256.Int) error {
	allowance := m.allowance(token, owner, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.Transfer(token, owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// Approve grants spender an allowance over owner's balance of token.
func (m *MemoryStore) Approve(token Token, owner, spender Account, amount *uint256.Int) {
	owners, ok := m.allowances[token]
	if !ok {
		owners = make(map[Account]map[Account]*uint256.Int)
		m.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[Account]*uint256.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(uint256.Int).Set(amount)
}

// memorySnapshot is a deep copy of a MemoryStore's state.
type memorySnapshot struct {
	balances   map[Token]map[Account]*uint256.Int
	allowances map[Token]map[Account]map[Account]*uint256.Int
}

// Snapshot captures a deep copy of all balances and allowances.
func (m *MemoryStore) Snapshot() StoreSnapshot {
	snap := &memorySnapshot{
		balances:   make(map[Token]map[Account]*uint256.Int, len(m.balances)),
		allowances: make(map[Token]map[Account]map[Account]*uint256.Int, len(m.allowances)),
	}
	for token, holders := range m.balances {
		copied := make(map[Account]*uint256.Int, len(holders))
		for holder, b := range holders {
			copied[holder] = new(uint256.Int).Set(b)
		}
		snap.balances[token] = copied
	}
	for token, owners := range m.allowances {
		copiedOwners := make(map[Account]map[Account]*uint256.Int, len(owners))
		for owner, spenders := range owners {
			copiedSpenders := make(map[Account]*uint256.Int, len(spenders))
			for spender, a := range spenders {
				copiedSpenders[spender] = new(uint256.Int).Set(a)
			}
			copiedOwners[owner] = copiedSpenders
		}
		snap.allowances[token] = copiedOwners
	}
	return snap
}

// Restore replaces the store state with a previously taken snapshot. The
// snapshot stays valid for further restores.
func (m *MemoryStore) Restore(snap StoreSnapshot) {
	ms, ok := snap.(*memorySnapshot)
	if !ok {
		return
	}
	restored := &MemoryStore{
		balances:   ms.balances,
		allowances: ms.allowances,
	}
	clone := restored.Snapshot().(*memorySnapshot)
	m.balances = clone.balances
	m.allowances = clone.allowances
}

func (m *MemoryStore) allowance(token Token, owner, spender Account) *uint256.Int {
	if owners, ok := m.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[spender]; ok {
				return a
			}
		}
	}
	return new(uint256.Int)
}

func (m *MemoryStore) debit(token Token, holder Account, amount *uint256.Int) error {
	holders, ok := m.balances[token]
	if !ok {
		return ErrInsufficientBalance
	}
	b, ok := holders[holder]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}

func (m *MemoryStore) credit(token Token, holder Account, amount *uint256.Int) error {
	holders, ok := m.balances[token]
	if !ok {
		holders = make(map[Account]*uint256.Int)
		m.balances[token] = holders
	}
	b, ok := holders[holder]
	if !ok {
		b = new(uint256.Int)
		holders[holder] = b
	}
	if _, overflow := b.AddOverflow(b, amount); overflow {
		b.Sub(b, amount)
		return ErrBalanceOverflow
	}
	return nil
}
