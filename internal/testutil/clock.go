package testutil

import (
	"time"

	"github.com/roach88/narrator/internal/clock"
)

// ManualClock is the virtual clock tests drive with Advance.
type ManualClock = clock.Manual

// NewManualClock creates a ManualClock at clock.Epoch.
func NewManualClock() *ManualClock {
	return clock.NewManual(time.Time{})
}
