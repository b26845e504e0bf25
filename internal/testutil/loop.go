package testutil

import "testing"

// Drainer is an event loop that can be pumped synchronously.
type Drainer interface {
	Drain() int
}

// maxSteps bounds RunUntilIdle so a run that reschedules itself forever
// fails the test instead of hanging it.
const maxSteps = 10000

// RunUntilIdle alternates draining loops and advancing clk to the next
// deadline until nothing is queued and no timer is pending. Loops that wait
// on something other than the clock (a manual narration spy) simply stop
// making progress, and RunUntilIdle returns so the test can resolve them.
func RunUntilIdle(t testing.TB, clk *ManualClock, loops ...Drainer) {
	t.Helper()

	for step := 0; step < maxSteps; step++ {
		drained := 0
		for _, l := range loops {
			drained += l.Drain()
		}
		if drained > 0 {
			continue
		}
		d, ok := clk.NextDeadline()
		if !ok {
			return
		}
		clk.Advance(d)
	}
	t.Fatalf("RunUntilIdle: still busy after %d steps", maxSteps)
}
