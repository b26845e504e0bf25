package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/muesli/termenv"

	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/render"
	"github.com/roach88/narrator/internal/sequencer"
	"github.com/roach88/narrator/internal/trace"
)

// Timing holds the pacing delays given to every visualization.
type Timing struct {
	Settle    time.Duration
	Narration time.Duration
	Fallback  time.Duration
}

// DefaultTiming matches the sequencer and gate defaults.
var DefaultTiming = Timing{
	Settle:    sequencer.DefaultSettleDelay,
	Narration: sequencer.DefaultNarrationDelay,
	Fallback:  narration.DefaultFallbackDelay,
}

// Player plays scripts: say steps go straight to the capability, show steps
// get their own sequencer, renderer and narration gate.
//
// A Player plays one script at a time.
type Player struct {
	driver     Driver
	capability narration.Capability
	audio      bool
	timing     Timing
	runIDs     sequencer.RunIDGenerator
	hooks      sequencer.Hooks
	recorder   *trace.Recorder
	logger     *slog.Logger

	out    io.Writer
	style  render.Style
	width  int
	redraw *termenv.Output

	current *sequencer.Sequencer
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithCapability sets the narration capability. Default: narration.None.
func WithCapability(c narration.Capability) PlayerOption {
	return func(p *Player) { p.capability = c }
}

// WithAudio turns all narration on or off. Default: on. Steps can still turn
// their own items off.
func WithAudio(enabled bool) PlayerOption {
	return func(p *Player) { p.audio = enabled }
}

// WithTiming overrides the pacing delays.
func WithTiming(t Timing) PlayerOption {
	return func(p *Player) { p.timing = t }
}

// WithRunIDGenerator sets the generator shared by every visualization.
func WithRunIDGenerator(g sequencer.RunIDGenerator) PlayerOption {
	return func(p *Player) { p.runIDs = g }
}

// WithHooks adds hooks to every visualization's sequencer.
func WithHooks(h sequencer.Hooks) PlayerOption {
	return func(p *Player) { p.hooks = sequencer.Merge(p.hooks, h) }
}

// WithRecorder records the script and every visualization into r.
func WithRecorder(r *trace.Recorder) PlayerOption {
	return func(p *Player) { p.recorder = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// WithOutput draws visualizations into w with style, wrapped to width.
// Default: nothing is drawn.
func WithOutput(w io.Writer, style render.Style, width int) PlayerOption {
	return func(p *Player) {
		p.out = w
		p.style = style
		p.width = width
	}
}

// WithRedraw redraws each frame in place through out.
func WithRedraw(out *termenv.Output) PlayerOption {
	return func(p *Player) { p.redraw = out }
}

// NewPlayer creates a player on driver.
func NewPlayer(driver Driver, opts ...PlayerOption) *Player {
	p := &Player{
		driver:     driver,
		capability: narration.None{},
		audio:      true,
		timing:     DefaultTiming,
		runIDs:     sequencer.UUIDv7Generator{},
		logger:     slog.Default(),
		out:        io.Discard,
		style:      render.NewStyle(nil),
		width:      render.DefaultWidth,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.capability == nil {
		p.capability = narration.None{}
	}
	return p
}

// Play runs every step of s in order and returns once the last wait has
// elapsed. Cancelling ctx stops the script and whatever is on screen.
func (p *Player) Play(ctx context.Context, s *Script) (err error) {
	p.logger.Info("script started", "script", s.Name, "steps", len(s.Steps))
	defer func() {
		p.clear()
		if cerr := p.driver.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("stopping visualizations: %w", cerr)
		}
		if err != nil {
			p.logger.Warn("script stopped", "script", s.Name, "error", err)
			return
		}
		p.logger.Info("script finished", "script", s.Name)
	}()

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.step(ctx, i, step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func (p *Player) step(ctx context.Context, i int, step Step) error {
	p.logger.Debug("step", "index", i, "kind", string(step.Kind()))

	switch step.Kind() {
	case KindSay:
		p.say(ctx, step.Say)
	case KindShow:
		done, err := p.show(i, step)
		if err != nil {
			return err
		}
		if step.WaitComplete {
			if err := p.driver.Until(ctx, done); err != nil {
				return fmt.Errorf("waiting for %s to complete: %w", step.Show, err)
			}
		}
	}

	if step.Caption != "" {
		p.record(trace.TypeCaption, map[string]any{"text": step.Caption})
		fmt.Fprintln(p.out, p.style.Caption(step.Caption))
	}

	if step.Wait > 0 {
		return p.driver.Sleep(ctx, step.Wait)
	}
	return nil
}

// say speaks text without waiting for it, the way a presenter talks over
// the screen.
func (p *Player) say(ctx context.Context, text string) {
	p.record(trace.TypeSay, map[string]any{"text": text})
	fmt.Fprintln(p.out, p.style.Speech(text))

	if !p.audio || !p.capability.Supported() {
		return
	}
	p.capability.Speak(ctx, text, func(r narration.Result) {
		if r.Outcome == narration.OutcomeFailed {
			p.logger.Warn("speech failed", "provider", p.capability.Name(), "error", r.Err)
			return
		}
		p.logger.Debug("speech finished", "provider", p.capability.Name(), "outcome", r.Outcome.String())
	})
}

// show replaces the current visualization and starts revealing the new one.
// The returned channel closes when every item has been revealed.
func (p *Player) show(i int, step Step) (<-chan struct{}, error) {
	kind, err := render.ParseKind(step.Show)
	if err != nil {
		return nil, err
	}
	visual, err := step.Visual()
	if err != nil {
		return nil, err
	}
	seq := visual.Sequence()

	renderer, err := render.New(kind, visual.Fields(), visual.TableColumns(seq), p.width, p.style)
	if err != nil {
		return nil, err
	}

	p.clear()

	source := fmt.Sprintf("%s#%d", kind, i)
	attrs := map[string]any{"kind": string(kind), "items": len(seq)}
	if step.Title != "" {
		attrs["title"] = step.Title
	}
	p.record(trace.TypeShow, attrs)

	view := render.NewView(renderer, p.out, step.Title,
		render.WithRedraw(p.redraw),
		render.WithViewLogger(p.logger))

	clk := p.driver.Clock()
	gate := narration.NewGate(p.capability,
		narration.WithClock(clk),
		narration.WithLogger(p.logger),
		narration.WithEnabled(p.audio && visual.AudioEnabled()),
		narration.WithFallbackDelay(p.timing.Fallback))

	done := make(chan struct{})
	var once sync.Once

	hooks := []sequencer.Hooks{view.Hooks(), p.hooks}
	if p.recorder != nil {
		hooks = append(hooks, p.recorder.Hooks(source))
	}

	s := sequencer.New(gate,
		sequencer.WithName(source),
		sequencer.WithClock(clk),
		sequencer.WithLogger(p.logger.With("visual", source)),
		sequencer.WithRunIDGenerator(p.runIDs),
		sequencer.WithSettleDelay(p.timing.Settle),
		sequencer.WithNarrationDelay(p.timing.Narration),
		sequencer.WithHooks(sequencer.Merge(hooks...)),
		sequencer.WithOnComplete(func(string) { once.Do(func() { close(done) }) }),
	)
	p.driver.Attach(s)
	p.current = s

	s.Start(seq)
	return done, nil
}

// clear stops whatever is on screen.
func (p *Player) clear() {
	if p.current == nil {
		return
	}
	p.current.Stop()
	p.current.Close()
	p.current = nil
}

func (p *Player) record(typ string, attrs map[string]any) {
	if p.recorder != nil {
		p.recorder.Record(typ, "script", attrs)
	}
}
