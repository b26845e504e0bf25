package sequencer

import (
	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
)

type eventKind int

const (
	eventStart eventKind = iota
	eventStop
	eventSettled
	eventNarrate
	eventNarrationDone
)

func (k eventKind) String() string {
	switch k {
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	case eventSettled:
		return "settled"
	case eventNarrate:
		return "narrate"
	case eventNarrationDone:
		return "narration_done"
	default:
		return "unknown"
	}
}

// event is one unit of work for the loop. run and index identify what the
// event was scheduled for; seq is only set on start and result only on
// narration_done.
type event struct {
	kind   eventKind
	run    string
	index  int
	seq    item.Sequence
	result narration.Result
}
