package render

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/muesli/termenv"

	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/sequencer"
)

// View redraws a Renderer into a writer as a sequencer progresses. Attach it
// with sequencer.WithHooks(view.Hooks()).
//
// On a terminal each frame replaces the previous one; otherwise frames are
// appended, separated by a blank line.
type View struct {
	renderer Renderer
	w        io.Writer
	out      *termenv.Output
	redraw   bool
	logger   *slog.Logger

	mu    sync.Mutex
	frame Frame
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithRedraw clears the screen before each frame through out.
func WithRedraw(out *termenv.Output) ViewOption {
	return func(v *View) {
		v.out = out
		v.redraw = out != nil
	}
}

// WithViewLogger sets the logger used for render failures.
func WithViewLogger(l *slog.Logger) ViewOption {
	return func(v *View) { v.logger = l }
}

// NewView draws r into w.
func NewView(r Renderer, w io.Writer, title string, opts ...ViewOption) *View {
	v := &View{
		renderer: r,
		w:        w,
		logger:   slog.Default(),
		frame:    Frame{Title: title, Active: -1},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Frame returns a copy of the last drawn state.
func (v *View) Frame() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.frame
	f.Revealed = append([]item.Item(nil), f.Revealed...)
	return f
}

// Hooks returns the sequencer hooks that drive the view.
func (v *View) Hooks() sequencer.Hooks {
	return sequencer.Hooks{
		OnStart: func(_ string, seq item.Sequence) {
			v.update(func(f *Frame) {
				f.Sequence = seq
				f.Revealed = f.Revealed[:0]
				f.Active = -1
				f.Narrating = false
				f.Done = false
			})
		},
		OnReveal: func(_ string, index int, it item.Item) {
			v.update(func(f *Frame) {
				if index < len(f.Revealed) {
					f.Revealed[index] = it
				} else {
					f.Revealed = append(f.Revealed, it)
				}
				f.Active = index
				f.Narrating = false
			})
		},
		OnNarrationStart: func(_ string, _ int, _ item.Item, skip string) {
			if skip != "" {
				return
			}
			v.update(func(f *Frame) { f.Narrating = true })
		},
		OnNarrationEnd: func(string, int, narration.Result) {
			v.update(func(f *Frame) { f.Narrating = false })
		},
		OnComplete: func(string, int) {
			v.update(func(f *Frame) {
				f.Active = -1
				f.Done = true
			})
		},
	}
}

func (v *View) update(change func(*Frame)) {
	v.mu.Lock()
	defer v.mu.Unlock()

	change(&v.frame)
	text, err := v.renderer.Render(v.frame)
	if err != nil {
		v.logger.Warn("render failed", "error", err)
		return
	}

	if v.redraw {
		v.out.ClearScreen()
		fmt.Fprint(v.w, text)
		return
	}
	fmt.Fprintln(v.w, text)
}
