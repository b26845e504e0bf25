// Package trace records what a run did, in order and on a logical time axis,
// and serialises it as canonical JSON for golden-file comparison and the
// CLI's trace command.
package trace
