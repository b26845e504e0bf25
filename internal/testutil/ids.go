package testutil

import "github.com/roach88/narrator/internal/sequencer"

// CountingIDGenerator returns "<prefix>-1", "<prefix>-2", ... in order, so
// the same scenario always produces the same run IDs.
type CountingIDGenerator = sequencer.SequentialGenerator

// NewCountingIDGenerator creates a generator. An empty prefix becomes "run".
func NewCountingIDGenerator(prefix string) *CountingIDGenerator {
	return sequencer.NewSequentialGenerator(prefix)
}
