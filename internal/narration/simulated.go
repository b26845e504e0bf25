package narration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/roach88/narrator/internal/clock"
)

// DefaultWordDuration approximates how long a synthetic voice spends per word.
const DefaultWordDuration = 350 * time.Millisecond

// Simulated pretends to speak: each call completes after a duration
// proportional to the number of words, measured on its clock. It backs
// headless and virtual-time runs where no audio is wanted but pacing should
// still look real.
type Simulated struct {
	Clock   clock.Clock
	PerWord time.Duration

	mu     sync.Mutex
	spoken []string
}

// NewSimulated creates a simulated capability on c.
func NewSimulated(c clock.Clock) *Simulated {
	return &Simulated{Clock: c, PerWord: DefaultWordDuration}
}

func (s *Simulated) Name() string    { return "simulated" }
func (s *Simulated) Supported() bool { return true }

// Spoken returns every text passed to Speak, in order.
func (s *Simulated) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Duration returns how long text takes to speak.
func (s *Simulated) Duration(text string) time.Duration {
	per := s.PerWord
	if per <= 0 {
		per = DefaultWordDuration
	}
	return time.Duration(len(strings.Fields(text))) * per
}

func (s *Simulated) Speak(ctx context.Context, text string, done func(Result)) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()

	var once sync.Once
	finish := func(r Result) { once.Do(func() { done(r) }) }

	c := s.Clock
	if c == nil {
		c = clock.Real{}
	}
	var (
		mu   sync.Mutex
		stop func() bool
	)
	mu.Lock()
	defer mu.Unlock()
	timer := c.AfterFunc(s.Duration(text), func() {
		mu.Lock()
		detach := stop
		mu.Unlock()
		if detach != nil {
			detach()
		}
		finish(Completed())
	})
	stop = context.AfterFunc(ctx, func() {
		timer.Stop()
		finish(Cancelled(ctx.Err()))
	})
}
