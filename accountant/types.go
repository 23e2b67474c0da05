package accountant

import (
	"github.com/holiman/uint256"
)

// Token identifies a token kind held in custody. Tokens are opaque
// identifiers; the accountant never interprets them beyond equality.
type Token string

// Account identifies a participant or custody holder.
type Account string

// MaxAmount bounds a single transfer to 128 bits. Debt accumulators and
// custody balances run at 256-bit width, so sums of bounded transfers
// cannot wrap before the per-transfer check fires.
var MaxAmount = func() *uint256.Int {
	one := uint256.NewInt(1)
	max := new(uint256.Int).Lsh(one, 128)
	return max.Sub(max, one)
}()

// validAmount reports whether amount is non-nil and within transfer width.
func validAmount(amount *uint256.Int) bool {
	return amount != nil && amount.Cmp(MaxAmount) <= 0
}

// Session is one open frame of the locker stack. ID equals the stack
// depth at push time; Controller is the identity currently authorized to
// mutate the session's debt.
type Session struct {
	ID         uint32
	Controller Account
}
