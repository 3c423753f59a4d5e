// Package collector aggregates worker events and builds the batch summary.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"promokeys/internal/core"
)

const bufferSize = 1000

// Collector aggregates events from workers and produces a summary.
type Collector struct {
	events    []core.Event
	ch        chan core.Event
	done      chan struct{}
	mu        sync.Mutex
	closeMu   sync.RWMutex
	closed    bool
	dropped   atomic.Int64
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	c := &Collector{
		events:    make([]core.Event, 0),
		ch:        make(chan core.Event, bufferSize),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report sends an event to the collector. Thread-safe. Logs, requests and
// attempts are dropped when the buffer is full; codes and completion events
// are always delivered. Events reported after Close are discarded.
func (c *Collector) Report(event core.Event) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return
	}

	if mustDeliver(event.Kind) {
		c.ch <- event
		return
	}
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

func mustDeliver(k core.Kind) bool {
	return k == core.KindCode || k == core.KindWorkerDone || k == core.KindBatchDone
}

// Close stops accepting events and waits for the buffer to drain.
func (c *Collector) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.mu.Lock()
	c.endTime = time.Now()
	c.mu.Unlock()
	close(c.ch)
	c.closeMu.Unlock()
	<-c.done
}

// Events returns a copy of collected events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// Dropped is the number of events discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Duration returns the time from creation to Close, or to now while still open.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute summarizes the events collected so far.
func (c *Collector) Compute() *Summary {
	s := ComputeSummary(c.Events(), c.Duration())
	s.Dropped = c.Dropped()
	return s
}
