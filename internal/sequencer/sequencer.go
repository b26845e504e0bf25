package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/queue"
)

// Default pacing delays.
const (
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultNarrationDelay = 300 * time.Millisecond
)

// Snapshot is a point-in-time copy of a Sequencer's run state.
type Snapshot struct {
	Name        string      `json:"name,omitempty"`
	RunID       string      `json:"run_id,omitempty"`
	Phase       Phase       `json:"phase"`
	ActiveIndex int         `json:"active_index"`
	Total       int         `json:"total"`
	Revealed    []item.Item `json:"-"`
	Narrating   bool        `json:"narrating"`
}

// RevealedCount returns the length of the revealed prefix.
func (s Snapshot) RevealedCount() int { return len(s.Revealed) }

// Sequencer is the reveal-and-narrate controller for one visualization.
//
// Thread-safety model:
//   - Start, Stop, Close, Snapshot: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Drain: test-only alternative to Run; never mix the two
type Sequencer struct {
	name           string
	gate           *narration.Gate
	clock          clock.Clock
	logger         *slog.Logger
	hooks          Hooks
	runIDs         RunIDGenerator
	settleDelay    time.Duration
	narrationDelay time.Duration

	queue *queue.FIFO[event]

	// Written only by the loop; mu lets Snapshot read concurrently.
	mu    sync.RWMutex
	state runState
}

// runState is everything a run owns. The zero value is idle.
type runState struct {
	run       string
	seq       item.Sequence
	phase     Phase
	active    int
	revealed  []item.Item
	narrating bool
	timer     clock.Timer
	cancel    context.CancelFunc
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock used for the settle and narration delays.
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithHooks adds observers. Repeated calls merge.
func WithHooks(h Hooks) Option {
	return func(s *Sequencer) { s.hooks = Merge(s.hooks, h) }
}

// WithOnComplete is shorthand for a hook that only observes completion.
func WithOnComplete(f func(run string)) Option {
	return WithHooks(Hooks{OnComplete: func(run string, _ int) { f(run) }})
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Sequencer) { s.runIDs = g }
}

// WithSettleDelay sets the wait between Start and the first reveal.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.settleDelay = d }
}

// WithNarrationDelay sets the wait between a reveal and its narration.
func WithNarrationDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.narrationDelay = d }
}

// WithName labels the sequencer in logs and snapshots.
func WithName(name string) Option {
	return func(s *Sequencer) { s.name = name }
}

// New creates an idle Sequencer that narrates through gate. A nil gate
// narrates nothing and paces every item on the default fallback delay.
func New(gate *narration.Gate, opts ...Option) *Sequencer {
	s := &Sequencer{
		clock:          clock.Real{},
		logger:         slog.Default(),
		runIDs:         UUIDv7Generator{},
		settleDelay:    DefaultSettleDelay,
		narrationDelay: DefaultNarrationDelay,
		queue:          queue.New[event](),
		state:          runState{active: -1},
	}
	for _, opt := range opts {
		opt(s)
	}
	if gate == nil {
		gate = narration.NewGate(nil, narration.WithClock(s.clock), narration.WithLogger(s.logger))
	}
	s.gate = gate
	if s.name != "" {
		s.logger = s.logger.With("sequencer", s.name)
	}
	return s
}

// Gate returns the narration gate.
func (s *Sequencer) Gate() *narration.Gate { return s.gate }

// Start begins a new run over seq, replacing any run in progress, and
// returns its run ID.
//
// An empty sequence is a no-op: Start returns "" and a run in progress is
// left alone.
func (s *Sequencer) Start(seq item.Sequence) string {
	if seq.Empty() {
		s.logger.Debug("start ignored: empty sequence")
		return ""
	}
	run := s.runIDs.Generate()
	owned := make(item.Sequence, len(seq))
	copy(owned, seq)
	if !s.queue.Push(event{kind: eventStart, run: run, seq: owned}) {
		return ""
	}
	return run
}

// Stop abandons the run in progress, if any. Pending timers and narration
// are cancelled and the revealed prefix is cleared.
func (s *Sequencer) Stop() {
	s.queue.Push(event{kind: eventStop})
}

// Close tears the sequencer down. Run stops and returns nil once the events
// queued before Close have been processed.
func (s *Sequencer) Close() {
	s.queue.Close()
}

// Snapshot returns a copy of the current run state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revealed := make([]item.Item, len(s.state.revealed))
	copy(revealed, s.state.revealed)
	return Snapshot{
		Name:        s.name,
		RunID:       s.state.run,
		Phase:       s.state.phase,
		ActiveIndex: s.state.active,
		Total:       len(s.state.seq),
		Revealed:    revealed,
		Narrating:   s.state.narrating,
	}
}

// Run is the single-writer loop. It blocks until ctx is done or Close is
// called, and tears down any run in progress before returning.
//
// Must be called from exactly one goroutine.
func (s *Sequencer) Run(ctx context.Context) error {
	s.logger.Debug("sequencer loop starting")

	for {
		if ev, ok := s.queue.TryPop(); ok {
			s.process(ev)
			continue
		}

		if s.queue.Closed() {
			s.teardown(ResetShutdown)
			s.logger.Debug("sequencer loop stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			s.teardown(ResetShutdown)
			s.logger.Debug("sequencer loop cancelled")
			return ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Drain processes queued events on the calling goroutine until the queue is
// empty and returns how many it handled. With a manual clock it makes runs
// fully deterministic.
func (s *Sequencer) Drain() int {
	n := 0
	for {
		ev, ok := s.queue.TryPop()
		if !ok {
			return n
		}
		s.process(ev)
		n++
	}
}

func (s *Sequencer) process(ev event) {
	switch ev.kind {
	case eventStart:
		s.handleStart(ev)
	case eventStop:
		s.teardown(ResetStop)
	default:
		if !s.current(ev) {
			s.logger.Debug("stale event dropped", "event", ev.kind.String(), "run_id", ev.run, "index", ev.index)
			return
		}
		switch ev.kind {
		case eventSettled:
			s.reveal(0)
		case eventNarrate:
			s.narrate(ev.index)
		case eventNarrationDone:
			s.narrationDone(ev.index, ev.result)
		}
	}
}

// current reports whether ev belongs to the run in progress and the phase
// that scheduled it.
func (s *Sequencer) current(ev event) bool {
	st := &s.state
	if ev.run == "" || ev.run != st.run {
		return false
	}
	switch ev.kind {
	case eventSettled:
		return st.phase == PhaseSettling
	case eventNarrate:
		return st.phase == PhaseRevealing && ev.index == st.active
	case eventNarrationDone:
		return (st.phase == PhaseNarrating || st.phase == PhasePacing) && ev.index == st.active
	default:
		return false
	}
}

func (s *Sequencer) handleStart(ev event) {
	if s.state.phase.Active() {
		s.teardown(ResetRestart)
	}

	s.mu.Lock()
	s.state = runState{
		run:      ev.run,
		seq:      ev.seq,
		phase:    PhaseSettling,
		active:   -1,
		revealed: make([]item.Item, 0, len(ev.seq)),
	}
	s.state.timer = s.after(s.settleDelay, event{kind: eventSettled, run: ev.run})
	s.mu.Unlock()

	s.logger.Debug("run started", "run_id", ev.run, "items", len(ev.seq))
	if s.hooks.OnStart != nil {
		s.hooks.OnStart(ev.run, ev.seq)
	}
}

// reveal makes index the active item, or completes the run when index is one
// past the end.
func (s *Sequencer) reveal(index int) {
	st := &s.state
	run := st.run

	if index >= len(st.seq) {
		s.complete()
		return
	}

	it := st.seq[index]
	s.mu.Lock()
	st.active = index
	st.phase = PhaseRevealing
	st.narrating = false
	// Overwrite the slot so a repeated reveal never duplicates an item.
	if index < len(st.revealed) {
		st.revealed[index] = it
	} else {
		st.revealed = append(st.revealed, it)
	}
	st.timer = s.after(s.narrationDelay, event{kind: eventNarrate, run: run, index: index})
	s.mu.Unlock()

	s.logger.Debug("item revealed", "run_id", run, "index", index)
	if s.hooks.OnReveal != nil {
		s.hooks.OnReveal(run, index, it)
	}
}

func (s *Sequencer) narrate(index int) {
	st := &s.state
	run := st.run
	it := st.seq[index]
	skip := s.gate.SkipReason(it)

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	st.timer = nil
	st.cancel = cancel
	if skip == "" {
		st.phase = PhaseNarrating
		st.narrating = true
	} else {
		st.phase = PhasePacing
	}
	s.mu.Unlock()

	if s.hooks.OnNarrationStart != nil {
		s.hooks.OnNarrationStart(run, index, it, skip)
	}

	s.gate.Narrate(ctx, it, func(r narration.Result) {
		s.queue.Push(event{kind: eventNarrationDone, run: run, index: index, result: r})
	})
}

func (s *Sequencer) narrationDone(index int, r narration.Result) {
	st := &s.state
	run := st.run

	if !r.Outcome.Ends() {
		// A cancelled narration belongs to a run being torn down; only a
		// real end may advance.
		s.logger.Debug("cancelled narration ignored", "run_id", run, "index", index)
		return
	}

	s.mu.Lock()
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.narrating = false
	s.mu.Unlock()

	s.logger.Debug("narration ended", "run_id", run, "index", index, "outcome", r.Outcome.String())
	if s.hooks.OnNarrationEnd != nil {
		s.hooks.OnNarrationEnd(run, index, r)
	}

	s.reveal(index + 1)
}

func (s *Sequencer) complete() {
	st := &s.state
	run := st.run
	n := len(st.revealed)

	s.mu.Lock()
	st.active = len(st.seq)
	st.phase = PhaseComplete
	s.mu.Unlock()

	s.logger.Info("run complete", "run_id", run, "revealed", n)
	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(run, n)
	}

	// Back to idle. The run ID, sequence and revealed prefix stay visible
	// until the next Start or Stop.
	s.mu.Lock()
	st.active = -1
	st.phase = PhaseIdle
	s.mu.Unlock()
}

// teardown abandons the run in progress: timers are stopped, narration is
// cancelled and the run state returns to idle.
func (s *Sequencer) teardown(reason string) {
	st := &s.state
	run := st.run
	active := st.phase.Active()

	s.mu.Lock()
	timer, cancel := st.timer, st.cancel
	s.state = runState{active: -1}
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.gate.Cancel()

	if !active {
		return
	}
	s.logger.Debug("run reset", "run_id", run, "reason", reason)
	if s.hooks.OnReset != nil {
		s.hooks.OnReset(run, reason)
	}
}

// after schedules ev on the loop's queue once d has elapsed.
func (s *Sequencer) after(d time.Duration, ev event) clock.Timer {
	return s.clock.AfterFunc(d, func() { s.queue.Push(ev) })
}
