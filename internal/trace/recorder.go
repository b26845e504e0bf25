package trace

import (
	"sync"
	"time"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/sequencer"
)

// Event types.
const (
	TypeStart          = "start"
	TypeReveal         = "reveal"
	TypeNarrationStart = "narration_start"
	TypeNarrationEnd   = "narration_end"
	TypeComplete       = "complete"
	TypeReset          = "reset"

	// Script-level events.
	TypeSay     = "say"
	TypeShow    = "show"
	TypeCaption = "caption"
)

// Event is one recorded step. Attrs holds type-specific values and must only
// contain types MarshalCanonical accepts.
type Event struct {
	Seq    int
	At     time.Duration
	Type   string
	Source string
	Run    string
	Index  int // -1 when the event is not about one item
	Attrs  map[string]any
}

func (e Event) canonical() map[string]any {
	m := make(map[string]any, len(e.Attrs)+6)
	for k, v := range e.Attrs {
		m[k] = v
	}
	m["seq"] = e.Seq
	m["at_ms"] = e.At.Milliseconds()
	m["type"] = e.Type
	if e.Source != "" {
		m["source"] = e.Source
	}
	if e.Run != "" {
		m["run"] = e.Run
	}
	if e.Index >= 0 {
		m["index"] = e.Index
	}
	return m
}

// MarshalCanonical encodes one event the way it appears in a snapshot.
func (e Event) MarshalCanonical() ([]byte, error) {
	return MarshalCanonical(e.canonical())
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeReset
}

// Snapshot is a named, complete trace.
type Snapshot struct {
	Name   string
	Events []Event
}

// MarshalCanonical encodes the snapshot for golden comparison.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		events[i] = e.canonical()
	}
	return MarshalCanonical(map[string]any{
		"name":   s.Name,
		"events": events,
	})
}

// Recorder collects events. Times are measured from the first event.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	clock clock.Clock

	mu        sync.Mutex
	origin    time.Time
	events    []Event
	observers []func(Event)
}

// NewRecorder creates an empty recorder timed by c.
func NewRecorder(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{clock: c}
}

// Record appends an event that is not tied to one item.
func (r *Recorder) Record(typ, source string, attrs map[string]any) {
	r.add(Event{Type: typ, Source: source, Index: -1, Attrs: attrs})
}

// Observe calls f with every event recorded from now on, after it has been
// appended. f must not call back into the recorder.
func (r *Recorder) Observe(f func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, f)
}

func (r *Recorder) add(e Event) {
	now := r.clock.Now()

	r.mu.Lock()
	if len(r.events) == 0 {
		r.origin = now
	}
	e.Seq = len(r.events) + 1
	e.At = now.Sub(r.origin)
	r.events = append(r.events, e)
	observers := r.observers
	r.mu.Unlock()

	for _, f := range observers {
		f(e)
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Snapshot returns the trace under name.
func (r *Recorder) Snapshot(name string) Snapshot {
	return Snapshot{Name: name, Events: r.Events()}
}

// Hooks records a sequencer's lifecycle, labelled with source.
func (r *Recorder) Hooks(source string) sequencer.Hooks {
	return sequencer.Hooks{
		OnStart: func(run string, seq item.Sequence) {
			r.add(Event{Type: TypeStart, Source: source, Run: run, Index: -1,
				Attrs: map[string]any{"items": len(seq)}})
		},
		OnReveal: func(run string, index int, it item.Item) {
			r.add(Event{Type: TypeReveal, Source: source, Run: run, Index: index,
				Attrs: map[string]any{"fields": it.Fields()}})
		},
		OnNarrationStart: func(run string, index int, it item.Item, skip string) {
			attrs := map[string]any{}
			if skip != "" {
				attrs["skip"] = skip
			} else {
				attrs["text"] = it.Narration()
			}
			r.add(Event{Type: TypeNarrationStart, Source: source, Run: run, Index: index, Attrs: attrs})
		},
		OnNarrationEnd: func(run string, index int, res narration.Result) {
			attrs := map[string]any{
				"outcome":     res.Outcome.String(),
				"duration_ms": res.Duration.Milliseconds(),
			}
			if res.Reason != "" {
				attrs["reason"] = res.Reason
			}
			if res.Err != nil {
				attrs["error"] = res.Err.Error()
			}
			r.add(Event{Type: TypeNarrationEnd, Source: source, Run: run, Index: index, Attrs: attrs})
		},
		OnComplete: func(run string, revealed int) {
			r.add(Event{Type: TypeComplete, Source: source, Run: run, Index: -1,
				Attrs: map[string]any{"revealed": revealed}})
		},
		OnReset: func(run string, reason string) {
			r.add(Event{Type: TypeReset, Source: source, Run: run, Index: -1,
				Attrs: map[string]any{"reason": reason}})
		},
	}
}
