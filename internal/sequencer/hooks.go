package sequencer

import (
	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
)

// Reset reasons passed to Hooks.OnReset.
const (
	ResetRestart  = "restart"
	ResetStop     = "stop"
	ResetShutdown = "shutdown"
)

// Hooks observe a Sequencer. Every hook runs on the loop goroutine, after
// the state change it reports is visible in Snapshot. Hooks must not block;
// calling Start or Stop from a hook is fine since both only enqueue.
//
// Nil hooks are skipped.
type Hooks struct {
	// OnStart fires when a run begins settling.
	OnStart func(run string, seq item.Sequence)

	// OnReveal fires when the item at index joins the revealed prefix.
	OnReveal func(run string, index int, it item.Item)

	// OnNarrationStart fires when the gate is invoked. skip is the gate's
	// skip reason, or "" if the capability will speak.
	OnNarrationStart func(run string, index int, it item.Item, skip string)

	// OnNarrationEnd fires when the gate reports the end of an item.
	OnNarrationEnd func(run string, index int, r narration.Result)

	// OnComplete fires exactly once per run that reveals every item.
	OnComplete func(run string, revealed int)

	// OnReset fires when a run in progress is abandoned.
	OnReset func(run string, reason string)
}

// Merge returns hooks that call each of hs in order.
func Merge(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		out = out.then(h)
	}
	return out
}

func (h Hooks) then(next Hooks) Hooks {
	return Hooks{
		OnStart:          chain2(h.OnStart, next.OnStart),
		OnReveal:         chain3(h.OnReveal, next.OnReveal),
		OnNarrationStart: chain4(h.OnNarrationStart, next.OnNarrationStart),
		OnNarrationEnd:   chain3(h.OnNarrationEnd, next.OnNarrationEnd),
		OnComplete:       chain2(h.OnComplete, next.OnComplete),
		OnReset:          chain2(h.OnReset, next.OnReset),
	}
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(x A, y B) {
		a(x, y)
		b(x, y)
	}
}

func chain3[A, B, C any](a, b func(A, B, C)) func(A, B, C) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(x A, y B, z C) {
		a(x, y, z)
		b(x, y, z)
	}
}

func chain4[A, B, C, D any](a, b func(A, B, C, D)) func(A, B, C, D) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(w A, x B, y C, z D) {
		a(w, x, y, z)
		b(w, x, y, z)
	}
}
