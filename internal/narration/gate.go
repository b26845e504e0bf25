package narration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/item"
)

// DefaultFallbackDelay paces items that are not narrated. It is longer than
// the sequencer's narration delay so skipped items still read as a beat.
const DefaultFallbackDelay = 800 * time.Millisecond

// Gate decides whether and how to narrate an item and guarantees a single
// completion signal per Narrate call.
//
// Thread-safety: safe for concurrent use, but a Gate is single-flight: a new
// Narrate cancels the previous call if it is still outstanding.
type Gate struct {
	capability Capability
	clock      clock.Clock
	logger     *slog.Logger
	enabled    bool
	fallback   time.Duration

	mu        sync.Mutex
	current   *call
	narrating bool
}

// call is one outstanding Narrate.
type call struct {
	once   sync.Once
	done   func(Result)
	start  time.Time
	timer  clock.Timer
	cancel context.CancelFunc
	stop   func() bool // detaches the ctx watcher
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the clock used for the fallback delay.
func WithClock(c clock.Clock) GateOption {
	return func(g *Gate) { g.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithEnabled turns narration on or off. Default: on.
func WithEnabled(enabled bool) GateOption {
	return func(g *Gate) { g.enabled = enabled }
}

// WithFallbackDelay sets the pacing delay for items that are not narrated.
func WithFallbackDelay(d time.Duration) GateOption {
	return func(g *Gate) { g.fallback = d }
}

// NewGate creates a gate over capability. A nil capability behaves as None.
func NewGate(capability Capability, opts ...GateOption) *Gate {
	if capability == nil {
		capability = None{}
	}
	g := &Gate{
		capability: capability,
		clock:      clock.Real{},
		logger:     slog.Default(),
		enabled:    true,
		fallback:   DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enabled reports whether narration is configured on.
func (g *Gate) Enabled() bool { return g.enabled }

// Capability returns the wrapped capability.
func (g *Gate) Capability() Capability { return g.capability }

// FallbackDelay returns the pacing delay used for skipped items.
func (g *Gate) FallbackDelay() time.Duration { return g.fallback }

// Narrating reports whether the capability is currently speaking.
func (g *Gate) Narrating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.narrating
}

// SkipReason returns why it would not be spoken, or "" if it would be.
func (g *Gate) SkipReason(it item.Item) string {
	switch {
	case !g.enabled:
		return ReasonDisabled
	case !g.capability.Supported():
		return ReasonUnsupported
	case !it.HasNarration():
		return ReasonNoText
	default:
		return ""
	}
}

// Narrate narrates it and invokes done exactly once.
//
// Cancelling ctx, calling Cancel, or starting another Narrate resolves an
// outstanding call with OutcomeCancelled. A cancellation the capability
// reports on its own is paced on the fallback delay and resolved as
// OutcomeFailed.
func (g *Gate) Narrate(ctx context.Context, it item.Item, done func(Result)) {
	g.Cancel()

	c := &call{done: done, start: g.clock.Now()}

	if err := ctx.Err(); err != nil {
		g.deliver(c, Cancelled(err))
		return
	}

	if reason := g.SkipReason(it); reason != "" {
		g.logger.Debug("narration skipped", "reason", reason, "delay", g.fallback)
		g.mu.Lock()
		g.current = c
		c.timer = g.clock.AfterFunc(g.fallback, func() {
			g.deliver(c, Result{Outcome: OutcomeSkipped, Reason: reason})
		})
		c.stop = context.AfterFunc(ctx, func() { g.cancelCall(c, ctx.Err()) })
		g.mu.Unlock()
		return
	}

	speakCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	g.mu.Lock()
	g.current = c
	g.narrating = true
	g.mu.Unlock()

	text := it.Narration()
	name := g.capability.Name()
	g.logger.Debug("narration started", "provider", name, "chars", len(text))

	g.capability.Speak(speakCtx, text, func(r Result) {
		if r.Outcome == OutcomeCompleted && r.Err != nil {
			r.Outcome = OutcomeFailed
		}
		if r.Outcome == 0 {
			r.Outcome = OutcomeCompleted
		}
		if r.Outcome == OutcomeCancelled && speakCtx.Err() == nil {
			// The provider gave up on its own (closed, pre-empted). Only the
			// gate's caller may cancel, so pace on the fallback and fail.
			g.providerCancelled(c, name, r.Err)
			return
		}
		if r.Outcome == OutcomeFailed {
			// Failure must never stall the sequence: log and report the end.
			g.logger.Warn("narration failed", "provider", name, "error", r.Err)
		}
		r.Provider = name
		if !g.deliver(c, r) {
			g.logger.Debug("duplicate narration callback dropped", "provider", name, "outcome", r.Outcome.String())
		}
	})
}

// providerCancelled resolves c as failed after the fallback delay.
func (g *Gate) providerCancelled(c *call, provider string, err error) {
	if err == nil {
		err = context.Canceled
	}
	g.logger.Warn("narration cancelled by provider", "provider", provider, "error", err, "delay", g.fallback)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != c || c.timer != nil {
		return
	}
	g.narrating = false
	c.timer = g.clock.AfterFunc(g.fallback, func() {
		g.deliver(c, Result{Outcome: OutcomeFailed, Err: err, Provider: provider})
	})
}

// Cancel resolves the outstanding call, if any, with OutcomeCancelled and
// stops its speech or fallback timer.
func (g *Gate) Cancel() {
	g.mu.Lock()
	c := g.current
	g.mu.Unlock()
	if c != nil {
		g.cancelCall(c, context.Canceled)
	}
}

func (g *Gate) cancelCall(c *call, cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	g.deliver(c, Cancelled(cause))
}

// deliver resolves c once. Returns false if c was already resolved.
func (g *Gate) deliver(c *call, r Result) bool {
	delivered := false
	c.once.Do(func() {
		delivered = true

		g.mu.Lock()
		if g.current == c {
			g.current = nil
			g.narrating = false
		}
		timer, cancel, stop := c.timer, c.cancel, c.stop
		g.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if cancel != nil {
			cancel()
		}
		if stop != nil {
			stop()
		}

		r.Duration = g.clock.Now().Sub(c.start)
		c.done(r)
	})
	return delivered
}
