package accountant

// DefaultMaxDepth bounds the locker stack. The limit stands in for the
// host environment's call-depth budget; exceeding it fails explicitly
// rather than overflowing.
const DefaultMaxDepth = 256

// lockerStack is the ordered sequence of active sessions, top = currently
// executing. Session ids are depth-based: the root frame is 0, each nested
// push increments by one, and a popped depth is reused by the next sibling.
type lockerStack struct {
	frames   []Session
	maxDepth int
}

func newLockerStack(maxDepth int) *lockerStack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &lockerStack{maxDepth: maxDepth}
}

func (s *lockerStack) depth() int { return len(s.frames) }

func (s *lockerStack) empty() bool { return len(s.frames) == 0 }

// push appends a new frame controlled by controller and returns its id.
func (s *lockerStack) push(controller Account) (uint32, error) {
	if len(s.frames) >= s.maxDepth {
		return 0, ErrStackExhausted
	}
	id := uint32(len(s.frames))
	s.frames = append(s.frames, Session{ID: id, Controller: controller})
	return id, nil
}

// current returns the top frame.
func (s *lockerStack) current() (Session, error) {
	if len(s.frames) == 0 {
		return Session{}, ErrNoActiveSession
	}
	return s.frames[len(s.frames)-1], nil
}

// substituteController replaces the controller of the top frame only and
// returns the previous controller. Callers must pair it with a restoring
// call before the frame is popped.
func (s *lockerStack) substituteController(next Account) (Account, error) {
	if len(s.frames) == 0 {
		return "", ErrNoActiveSession
	}
	top := &s.frames[len(s.frames)-1]
	prev := top.Controller
	top.Controller = next
	return prev, nil
}

// pop removes the top frame. The settlement check happens in the
// accountant before pop is called.
func (s *lockerStack) pop() error {
	if len(s.frames) == 0 {
		return ErrNoActiveSession
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// reset discards all frames. Used on atomic abort of an invocation.
func (s *lockerStack) reset() {
	s.frames = s.frames[:0]
}
