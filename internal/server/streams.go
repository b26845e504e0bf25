package server

import (
	"log/slog"
	"sync"

	"github.com/roach88/narrator/internal/trace"
)

// StreamManager fans recorded events out to SSE subscribers, per run.
type StreamManager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan trace.Event]struct{}
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[string]map[chan trace.Event]struct{}),
	}
}

// Subscribe returns a channel of events for runID and a func that ends the
// subscription. The channel is closed by the cancel func or by CloseRun.
func (sm *StreamManager) Subscribe(runID string) (<-chan trace.Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan trace.Event, 32)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan trace.Event]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[runID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(sm.subscribers, runID)
			}
		}
	}
}

// Broadcast sends e to every subscriber of runID. Slow subscribers lose the
// event rather than block the sequencer loop.
func (sm *StreamManager) Broadcast(runID string, e trace.Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[runID] {
		select {
		case ch <- e:
		default:
			sm.logger.Warn("sse client buffer full, dropping event", "run_id", runID, "seq", e.Seq)
		}
	}
}

// CloseRun ends every subscription to runID.
func (sm *StreamManager) CloseRun(runID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for ch := range sm.subscribers[runID] {
		close(ch)
	}
	delete(sm.subscribers, runID)
}

// Subscribers reports how many clients follow runID.
func (sm *StreamManager) Subscribers(runID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID])
}
