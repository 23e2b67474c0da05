package accountant

import (
	"github.com/holiman/uint256"
)

// payKey keys a payment snapshot by session and token. Nested sessions
// have independent snapshots keyed by their own id.
type payKey struct {
	session uint32
	token   Token
}

// paySnapshots holds custody balances observed at StartPayments, consumed
// by CompletePayments to turn externally deposited balance deltas into
// implicit debt reductions.
type paySnapshots struct {
	balances map[payKey]*uint256.Int
}

func newPaySnapshots() *paySnapshots {
	return &paySnapshots{balances: make(map[payKey]*uint256.Int)}
}

// record stores the custody balance for (session, token). A repeated
// start for the same token overwrites the earlier snapshot.
func (p *paySnapshots) record(session uint32, token Token, balance *uint256.Int) {
	p.balances[payKey{session, token}] = new(uint256.Int).Set(balance)
}

// take removes and returns the snapshot for (session, token).
func (p *paySnapshots) take(session uint32, token Token) (*uint256.Int, error) {
	key := payKey{session, token}
	balance, ok := p.balances[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	delete(p.balances, key)
	return balance, nil
}

// clear drops all snapshots belonging to a session id. Called on both pop
// and push, for the same id-reuse reason as the debt ledger.
func (p *paySnapshots) clear(session uint32) {
	for key := range p.balances {
		if key.session == session {
			delete(p.balances, key)
		}
	}
}

// reset discards all snapshots. Used on atomic abort.
func (p *paySnapshots) reset() {
	p.balances = make(map[payKey]*uint256.Int)
}
