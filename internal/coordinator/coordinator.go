// Package coordinator runs a fixed pool of workers and waits for all of them.
package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"promokeys/internal/core"
)

// DefaultStaggerMax is the upper bound of the random start offset.
const DefaultStaggerMax = 5 * time.Second

// Result summarizes a finished batch.
type Result struct {
	Workers   int
	Completed int // workers that returned without error
	Failed    int // workers that returned an error or panicked
	Cancelled bool
	Elapsed   time.Duration
}

type Coordinator struct {
	// StaggerMax bounds the start offset when staggering is requested.
	StaggerMax time.Duration
	Clock      core.Clock
	Rand       interface{ Int63n(int64) int64 }

	nextID    atomic.Int64
	wg        sync.WaitGroup
	sink      core.EventSink
	active    atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

func NewCoordinator(sink core.EventSink) *Coordinator {
	if sink == nil {
		sink = core.NullSink
	}
	return &Coordinator{
		StaggerMax: DefaultStaggerMax,
		Clock:      core.RealClock{},
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sink:       sink,
	}
}

// Spawn starts count workers, each asked for quantity keys. Offsets holds
// the per-worker start delay; it may be nil or shorter than count.
func (c *Coordinator) Spawn(ctx context.Context, count, quantity int, workflow core.Workflow, offsets []time.Duration) {
	for i := 0; i < count; i++ {
		workerID := int(c.nextID.Add(1))
		var offset time.Duration
		if i < len(offsets) {
			offset = offsets[i]
		}
		c.active.Add(1)
		c.wg.Add(1)
		go func(id int, offset time.Duration) {
			defer func() {
				c.wg.Done()
				c.active.Add(-1)
			}()
			defer c.recoverPanic(id)

			if offset > 0 {
				if err := c.Clock.Sleep(ctx, offset); err != nil {
					c.failed.Add(1)
					return
				}
			}
			if err := workflow.Run(ctx, id, quantity, c.sink); err != nil {
				c.failed.Add(1)
				if ctx.Err() == nil {
					c.report(core.Event{
						WorkerID: id,
						Kind:     core.KindLog,
						Severity: core.SeverityError,
						Message:  fmt.Sprintf("worker stopped: %v", err),
					})
				}
				return
			}
			c.completed.Add(1)
		}(workerID, offset)
	}
}

func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) ActiveWorkers() int {
	return int(c.active.Load())
}

// Run starts workers goroutines, optionally staggered, blocks until every one
// has returned and then emits a single batch_done event.
func (c *Coordinator) Run(ctx context.Context, workflow core.Workflow, workers, quantity int, stagger bool) Result {
	start := c.Clock.Now()

	var offsets []time.Duration
	if stagger {
		offsets = c.staggerOffsets(workers)
	}
	c.Spawn(ctx, workers, quantity, workflow, offsets)
	c.Wait()

	res := Result{
		Workers:   workers,
		Completed: int(c.completed.Load()),
		Failed:    int(c.failed.Load()),
		Cancelled: ctx.Err() != nil,
		Elapsed:   c.Clock.Since(start),
	}

	e := core.Event{
		Kind:     core.KindBatchDone,
		Duration: res.Elapsed,
		Success:  !res.Cancelled && res.Failed == 0,
	}
	switch {
	case res.Cancelled:
		e.Severity = core.SeverityWarning
		e.Message = fmt.Sprintf("batch cancelled, %d/%d worker(s) finished", res.Completed, workers)
	case res.Failed > 0:
		e.Severity = core.SeverityError
		e.Message = fmt.Sprintf("batch finished, %d/%d worker(s) failed", res.Failed, workers)
	default:
		e.Severity = core.SeveritySuccess
		e.Message = fmt.Sprintf("batch finished, %d worker(s) done", workers)
	}
	c.report(e)
	return res
}

// staggerOffsets draws the offsets up front so Rand is only used from the
// calling goroutine.
func (c *Coordinator) staggerOffsets(n int) []time.Duration {
	if c.StaggerMax <= 0 {
		return nil
	}
	offsets := make([]time.Duration, n)
	for i := range offsets {
		offsets[i] = time.Duration(c.Rand.Int63n(int64(c.StaggerMax) + 1))
	}
	return offsets
}

// recoverPanic turns a panicking worker into an error event so its siblings keep running.
func (c *Coordinator) recoverPanic(workerID int) {
	if r := recover(); r != nil {
		c.failed.Add(1)
		c.report(core.Event{
			WorkerID: workerID,
			Kind:     core.KindLog,
			Severity: core.SeverityError,
			Step:     "panic",
			Message:  fmt.Sprintf("panic: %v", r),
		})
	}
}

func (c *Coordinator) report(e core.Event) {
	e.Timestamp = c.Clock.Now()
	c.sink.Report(e)
}
