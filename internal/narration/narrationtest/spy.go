// Package narrationtest provides a scriptable narration.Capability for tests.
package narrationtest

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/narrator/internal/narration"
)

// ErrSpy is the error reported by a Spy in ModeFail.
var ErrSpy = errors.New("spy: scripted failure")

// Mode controls how a Spy resolves Speak calls.
type Mode int

const (
	// ModeManual holds every call until the test resolves it.
	ModeManual Mode = iota
	// ModeComplete resolves every call synchronously with OutcomeCompleted.
	ModeComplete
	// ModeFail resolves every call synchronously with OutcomeFailed.
	ModeFail
)

// Call is one recorded Speak invocation.
type Call struct {
	Text string
	Ctx  context.Context
	done func(narration.Result)
}

// Spy records Speak calls and resolves them according to its Mode.
//
// In ModeManual the Spy does not watch ctx: a cancelled call stays pending
// until the test resolves it, which lets tests deliver deliberately late
// callbacks.
//
// Thread-safety: safe for concurrent use.
type Spy struct {
	mu          sync.Mutex
	mode        Mode
	unsupported bool
	calls       []*Call
	pending     []*Call
	resolved    int
}

// NewSpy creates a supported spy in the given mode.
func NewSpy(mode Mode) *Spy {
	return &Spy{mode: mode}
}

var _ narration.Capability = (*Spy)(nil)

// Name returns "spy".
func (s *Spy) Name() string { return "spy" }

// Supported reports whether the spy claims to be able to speak.
func (s *Spy) Supported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unsupported
}

// SetSupported toggles Supported.
func (s *Spy) SetSupported(supported bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsupported = !supported
}

// Speak records the call and resolves it per Mode.
func (s *Spy) Speak(ctx context.Context, text string, done func(narration.Result)) {
	c := &Call{Text: text, Ctx: ctx, done: done}

	s.mu.Lock()
	s.calls = append(s.calls, c)
	mode := s.mode
	if mode == ModeManual {
		s.pending = append(s.pending, c)
	} else {
		s.resolved++
	}
	s.mu.Unlock()

	switch mode {
	case ModeComplete:
		done(narration.Completed())
	case ModeFail:
		done(narration.Failed(ErrSpy))
	}
}

// Texts returns the text of every recorded call, in order.
func (s *Spy) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of Speak calls.
func (s *Spy) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Pending returns the number of unresolved manual calls.
func (s *Spy) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Resolved returns how many calls the spy has resolved.
func (s *Spy) Resolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Resolve resolves the oldest pending call with r.
// Returns false if nothing is pending.
func (s *Spy) Resolve(r narration.Result) bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	s.resolved++
	s.mu.Unlock()

	c.done(r)
	return true
}

// Complete resolves the oldest pending call successfully.
func (s *Spy) Complete() bool { return s.Resolve(narration.Completed()) }

// Fail resolves the oldest pending call with err.
func (s *Spy) Fail(err error) bool {
	if err == nil {
		err = ErrSpy
	}
	return s.Resolve(narration.Failed(err))
}

// ResolveAll resolves every pending call with r and returns how many there
// were.
func (s *Spy) ResolveAll(r narration.Result) int {
	n := 0
	for s.Resolve(r) {
		n++
	}
	return n
}

// ReplayLast invokes the callback of the most recent call again, simulating
// a capability that reports twice.
func (s *Spy) ReplayLast(r narration.Result) bool {
	s.mu.Lock()
	if len(s.calls) == 0 {
		s.mu.Unlock()
		return false
	}
	c := s.calls[len(s.calls)-1]
	s.mu.Unlock()

	c.done(r)
	return true
}
