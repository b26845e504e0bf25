package sequencer

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// RunIDGenerator mints run IDs. Implementations must be safe for concurrent
// use since Start may be called from any goroutine.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-sortable UUIDv7 run IDs.
type UUIDv7Generator struct{}

// Generate panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run IDs in order, for golden traces.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next ID and panics once they are exhausted, which
// surfaces tests that start more runs than they declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all run IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialGenerator returns "<prefix>-1", "<prefix>-2", ... in order. It
// never runs out, so a headless run that starts several sequencers still
// produces the same IDs every time.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator. An empty prefix becomes "run".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialGenerator{prefix: prefix}
}

func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
