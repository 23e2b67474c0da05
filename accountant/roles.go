package accountant

// Locker is a participant that opens sessions. The accountant invokes
// HandleLockData with its own identity as caller; implementations must
// reject any other caller with ErrAccountantOnly — this check is the sole
// isolation mechanism against forged callbacks.
type Locker interface {
	// Identity returns the account the participant acts as.
	Identity() Account

	// HandleLockData runs inside the session the accountant pushed for
	// this locker. The payload is opaque to the accountant.
	HandleLockData(caller Account, session uint32, payload []byte) ([]byte, error)
}

// Forwardee is a participant that acts inside another participant's open
// session via Forward. Same caller restriction as Locker.
type Forwardee interface {
	Identity() Account

	// HandleForwardData runs with the forwardee temporarily substituted as
	// the session's controller. original is the controller being
	// substituted, so the forwardee can attribute the request.
	HandleForwardData(caller Account, original Account, payload []byte) ([]byte, error)
}

// ParticipantBase is the scaffolding both roles embed. It pins the
// participant's identity and the accountant it trusts, and provides the
// caller check every callback must apply first.
type ParticipantBase struct {
	Self       Account
	Accountant *Accountant
}

// NewParticipantBase binds an identity to the accountant whose callbacks
// it will accept.
func NewParticipantBase(self Account, a *Accountant) ParticipantBase {
	return ParticipantBase{Self: self, Accountant: a}
}

// Identity returns the participant's account.
func (b *ParticipantBase) Identity() Account { return b.Self }

// Authorize rejects callback invocations that do not originate from the
// bound accountant.
func (b *ParticipantBase) Authorize(caller Account) error {
	if b.Accountant == nil || caller != b.Accountant.Identity() {
		return ErrAccountantOnly
	}
	return nil
}

// LockerFunc adapts a function to the Locker interface with the caller
// check applied. Useful for tests and small participants.
type LockerFunc struct {
	ParticipantBase
	Fn func(session uint32, payload []byte) ([]byte, error)
}

// NewLockerFunc creates a function-backed locker bound to the accountant.
func NewLockerFunc(self Account, a *Accountant, fn func(session uint32, payload []byte) ([]byte, error)) *LockerFunc {
	return &LockerFunc{ParticipantBase: NewParticipantBase(self, a), Fn: fn}
}

func (l *LockerFunc) HandleLockData(caller Account, session uint32, payload []byte) ([]byte, error) {
	if err := l.Authorize(caller); err != nil {
		return nil, err
	}
	return l.Fn(session, payload)
}

// ForwardeeFunc adapts a function to the Forwardee interface with the
// caller check applied.
type ForwardeeFunc struct {
	ParticipantBase
	Fn func(original Account, payload []byte) ([]byte, error)
}

// NewForwardeeFunc creates a function-backed forwardee bound to the accountant.
func NewForwardeeFunc(self Account, a *Accountant, fn func(original Account, payload []byte) ([]byte, error)) *ForwardeeFunc {
	return &ForwardeeFunc{ParticipantBase: NewParticipantBase(self, a), Fn: fn}
}

func (f *ForwardeeFunc) HandleForwardData(caller Account, original Account, payload []byte) ([]byte, error) {
	if err := f.Authorize(caller); err != nil {
		return nil, err
	}
	return f.Fn(original, payload)
}
