// Package snapshot holds the most recent filtered reading for polling consumers.
package snapshot

import (
	"sync"
	"time"

	"github.com/itohio/insole/pkg/sensor"
)

// Snapshot is one published reading.
type Snapshot struct {
	Timestamp time.Time
	Values    sensor.Reading
}

// Cache is a single-slot mailbox. The ingestion loop is the only writer;
// any number of consumers may wait on it. A publish wakes every waiter
// blocked at that moment and marks the snapshot ready; the first Wait to see
// it clears readiness, so a later call waits for the next publish.
type Cache struct {
	mu     sync.Mutex
	value  Snapshot
	ready  bool
	signal chan struct{} // closed and replaced on every publish
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{signal: make(chan struct{})}
}

// Publish overwrites the snapshot and signals readiness. It never blocks.
func (c *Cache) Publish(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = Snapshot{Timestamp: s.Timestamp, Values: s.Values.Clone()}
	c.ready = true
	close(c.signal)
	c.signal = make(chan struct{})
}

// Wait returns a copy of the snapshot if one is ready, otherwise it blocks up
// to timeout for the next publish. Either way readiness is cleared.
func (c *Cache) Wait(timeout time.Duration) (Snapshot, bool) {
	c.mu.Lock()
	if c.ready {
		defer c.mu.Unlock()
		return c.take(), true
	}
	signal := c.signal
	c.mu.Unlock()

	if timeout <= 0 {
		return Snapshot{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-signal:
	case <-timer.C:
		return Snapshot{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.take(), true
}

// take copies the snapshot and clears readiness. c.mu must be held.
func (c *Cache) take() Snapshot {
	c.ready = false
	return Snapshot{Timestamp: c.value.Timestamp, Values: c.value.Values.Clone()}
}

// Peek returns the last published snapshot without consuming readiness.
func (c *Cache) Peek() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value.Values == nil {
		return Snapshot{}, false
	}
	return Snapshot{Timestamp: c.value.Timestamp, Values: c.value.Values.Clone()}, true
}
