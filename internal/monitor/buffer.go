package monitor

import (
	"sync"

	"github.com/orbitvpn/sentinel/internal/store"
)

// UpdateBuffer accumulates usage-counter updates during one reconciliation
// cycle. Evaluations stage entries concurrently; the cycle flushes the whole
// buffer in one bulk write after all panels are processed.
type UpdateBuffer struct {
	mu      sync.Mutex
	pending []store.CounterUpdate
}

// Stage records a counter update for the next flush.
func (b *UpdateBuffer) Stage(id int64, usedGB float64) {
	b.mu.Lock()
	b.pending = append(b.pending, store.CounterUpdate{ID: id, UsedGB: usedGB})
	b.mu.Unlock()
}

// Drain returns all staged updates and clears the buffer.
func (b *UpdateBuffer) Drain() []store.CounterUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Len returns the number of staged updates.
func (b *UpdateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
