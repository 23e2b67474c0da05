package accountant

import (
	"errors"
	"testing"
)

func TestStackDepthIDs(t *testing.T) {
	s := newLockerStack(8)

	id, err := s.push("alice")
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if id != 0 {
		t.Errorf("root session id = %d, want 0", id)
	}

	id, err = s.push("bob")
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if id != 1 {
		t.Errorf("nested session id = %d, want 1", id)
	}

	if err := s.pop(); err != nil {
		t.Fatalf("pop failed: %v", err)
	}

	// A later sibling at the same depth reuses the freed id.
	id, err = s.push("carol")
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if id != 1 {
		t.Errorf("sibling session id = %d, want 1", id)
	}
}

func TestStackCurrentEmpty(t *testing.T) {
	s := newLockerStack(8)
	if _, err := s.current(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("current on empty stack: got %v, want ErrNoActiveSession", err)
	}
	if err := s.pop(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("pop on empty stack: got %v, want ErrNoActiveSession", err)
	}
	if _, err := s.substituteController("x"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("substitute on empty stack: got %v, want ErrNoActiveSession", err)
	}
}

func TestStackSubstituteController(t *testing.T) {
	s := newLockerStack(8)
	s.push("alice")
	s.push("bob")

	prev, err := s.substituteController("carol")
	if err != nil {
		t.Fatalf("substitute failed: %v", err)
	}
	if prev != "bob" {
		t.Errorf("previous controller = %q, want bob", prev)
	}

	top, _ := s.current()
	if top.Controller != "carol" {
		t.Errorf("controller = %q, want carol", top.Controller)
	}
	if top.ID != 1 {
		t.Errorf("substitute changed session id: got %d, want 1", top.ID)
	}

	// Only the top frame is touched.
	if s.frames[0].Controller != "alice" {
		t.Errorf("bottom frame controller = %q, want alice", s.frames[0].Controller)
	}

	if _, err := s.substituteController(prev); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	top, _ = s.current()
	if top.Controller != "bob" {
		t.Errorf("restored controller = %q, want bob", top.Controller)
	}
}

func TestStackExhausted(t *testing.T) {
	s := newLockerStack(2)
	s.push("a")
	s.push("b")
	if _, err := s.push("c"); !errors.Is(err, ErrStackExhausted) {
		t.Errorf("push beyond max depth: got %v, want ErrStackExhausted", err)
	}
}

func TestStackReset(t *testing.T) {
	s := newLockerStack(8)
	s.push("a")
	s.push("b")
	s.reset()
	if !s.empty() {
		t.Errorf("stack not empty after reset, depth=%d", s.depth())
	}
	// Fresh pushes start from depth 0 again.
	id, _ := s.push("c")
	if id != 0 {
		t.Errorf("post-reset session id = %d, want 0", id)
	}
}
