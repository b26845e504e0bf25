package narration

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome classifies how a narration ended.
type Outcome int

const (
	// OutcomeCompleted means the capability finished speaking.
	OutcomeCompleted Outcome = iota + 1
	// OutcomeFailed means synthesis, playback or transport failed.
	OutcomeFailed
	// OutcomeSkipped means no capability was invoked and the fallback delay
	// elapsed instead.
	OutcomeSkipped
	// OutcomeCancelled means the call was cancelled before it ended.
	OutcomeCancelled
)

// String returns the lower-case outcome name used in logs, traces and metric
// labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Ends reports whether the outcome lets a sequencer move on. Only
// cancellation does not.
func (o Outcome) Ends() bool {
	return o == OutcomeCompleted || o == OutcomeFailed || o == OutcomeSkipped
}

// Skip reasons reported in Result.Reason.
const (
	ReasonDisabled    = "disabled"
	ReasonUnsupported = "unsupported"
	ReasonNoText      = "no_text"
)

// ErrUnsupported is returned by providers that cannot speak in the current
// environment (no speech binary, no API credential).
var ErrUnsupported = errors.New("narration unsupported")

// Result reports the end of one Speak or Narrate call.
type Result struct {
	Outcome Outcome

	// Err is set for OutcomeFailed and may wrap context.Canceled for
	// OutcomeCancelled.
	Err error

	// Reason explains an OutcomeSkipped.
	Reason string

	// Provider names the capability that produced the result, if any.
	Provider string

	// Duration is the time between the call and its resolution.
	Duration time.Duration
}

// Completed is a convenience constructor for a successful result.
func Completed() Result { return Result{Outcome: OutcomeCompleted} }

// Failed is a convenience constructor for a failed result.
func Failed(err error) Result { return Result{Outcome: OutcomeFailed, Err: err} }

// Cancelled is a convenience constructor for a cancelled result.
func Cancelled(err error) Result { return Result{Outcome: OutcomeCancelled, Err: err} }

// FromContext maps a finished call's error to a Result, treating context
// cancellation as OutcomeCancelled rather than failure.
func FromContext(ctx context.Context, err error) Result {
	if err == nil {
		return Completed()
	}
	if ctx.Err() != nil {
		// A killed process or aborted request reports an incidental error;
		// the cause is the cancellation.
		return Cancelled(err)
	}
	return Failed(err)
}

// Capability speaks text. See the package documentation for the contract.
type Capability interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Supported reports whether Speak can produce audio at all.
	Supported() bool

	// Speak starts speaking text and invokes done exactly once.
	Speak(ctx context.Context, text string, done func(Result))
}

// None is a Capability that is never supported. Sequencers using it pace on
// the fallback delay.
type None struct{}

func (None) Name() string    { return "none" }
func (None) Supported() bool { return false }

func (None) Speak(_ context.Context, _ string, done func(Result)) {
	done(Failed(ErrUnsupported))
}

// SpeakSync calls c.Speak and blocks until it resolves or ctx is done.
func SpeakSync(ctx context.Context, c Capability, text string) Result {
	ch := make(chan Result, 1)
	c.Speak(ctx, text, func(r Result) {
		select {
		case ch <- r:
		default:
		}
	})
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return Cancelled(ctx.Err())
	}
}
