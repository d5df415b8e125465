package memory

import (
	"context"
	"sync"
	"time"
)

// defaultConsolidationInterval is the default period between consolidation
// ticks.
const defaultConsolidationInterval = 30 * time.Minute

// Consolidator periodically forces a long-term distillation so that turns
// appended since the last trigger point still reach the persisted record.
// Without it, a process that stops between trigger counts would lose the
// tail of the conversation from long-term memory.
//
// All methods are safe for concurrent use.
type Consolidator struct {
	manager  *Manager
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewConsolidator creates a [Consolidator] for the given manager. An
// interval of zero or less defaults to 30 minutes.
func NewConsolidator(manager *Manager, interval time.Duration) *Consolidator {
	if interval <= 0 {
		interval = defaultConsolidationInterval
	}
	return &Consolidator{
		manager:  manager,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins periodic consolidation in a background goroutine.
// The goroutine runs until [Consolidator.Stop] is called or ctx is cancelled.
func (c *Consolidator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the consolidation loop. Safe to call multiple times.
func (c *Consolidator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// Flush performs an immediate consolidation. It reports whether there was
// anything to distill. Intended for shutdown paths.
func (c *Consolidator) Flush(ctx context.Context) bool {
	return c.manager.DistillIfStale(ctx)
}

// loop runs the periodic consolidation ticker.
func (c *Consolidator) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.manager.DistillIfStale(ctx) {
				c.manager.log.Debug("periodic consolidation ran")
			}
		}
	}
}
