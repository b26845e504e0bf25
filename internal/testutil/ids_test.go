package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountingIDGenerator(t *testing.T) {
	g := NewCountingIDGenerator("")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-2", g.Generate())

	g = NewCountingIDGenerator("table")
	assert.Equal(t, "table-1", g.Generate())
}

func TestCountingIDGenerator_ThreadSafe(t *testing.T) {
	g := NewCountingIDGenerator("x")
	const n = 100
	seen := make(chan string, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			seen <- g.Generate()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, n)
}
