// Package sequencer reveals the items of a sequence one at a time, gating
// each step on the narration of the item just revealed.
//
// A Sequencer is a single-writer event loop. Start, Stop and every timer or
// narration callback only push events onto a FIFO; all run state is mutated
// by the goroutine in Run (or by Drain in tests). Every event carries the run
// ID and item index it was scheduled for, and events that no longer match
// the current run are dropped, so a callback from a replaced or stopped run
// can never advance the new one.
//
// A run moves through explicit phases:
//
//	Idle -> Settling -> Revealing -> Narrating|Pacing -> Revealing -> ... -> Complete -> Idle
//
// Settling is the short delay after Start, Revealing covers the delay between
// an item appearing and its narration, Narrating waits on the capability and
// Pacing waits on the gate's fallback delay for items that are not spoken.
package sequencer
