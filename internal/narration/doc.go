// Package narration defines the speech capability contract and the gate that
// paces a sequencer on narration.
//
// # Capability contract
//
// A Capability speaks text asynchronously and reports back through a done
// callback:
//
//   - done is invoked exactly once per Speak call, whether speech completes,
//     fails, or is cancelled.
//   - Cancellation is per call: cancel the ctx passed to Speak. A cancelled
//     call resolves with OutcomeCancelled, which is a distinct outcome and
//     never means "finished speaking".
//   - Providers that hold process-wide resources also implement io.Closer;
//     Close cancels every outstanding call.
//
// # Gate
//
// Gate wraps a Capability for one sequencer. Narrate always calls back
// exactly once: immediately after speech, after a fallback delay when
// narration is disabled, unsupported or the item has no text, and with
// OutcomeCancelled when cancelled. A failing capability is logged and treated
// as the end of narration; nothing is retried.
package narration
