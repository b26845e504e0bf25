package sequencer

import "fmt"

// Phase is the explicit state of a Sequencer's run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSettling
	PhaseRevealing
	PhaseNarrating
	PhasePacing
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSettling:
		return "settling"
	case PhaseRevealing:
		return "revealing"
	case PhaseNarrating:
		return "narrating"
	case PhasePacing:
		return "pacing"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Active reports whether a run is in progress.
func (p Phase) Active() bool {
	return p != PhaseIdle && p != PhaseComplete
}

// MarshalText renders the phase name in JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIdle; candidate <= PhaseComplete; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
