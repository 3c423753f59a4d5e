// Package core defines the fundamental interfaces and types shared by promo workers.
package core

import (
	"context"
	"time"
)

// Kind classifies an Event.
type Kind string

const (
	KindLog        Kind = "log"
	KindRequest    Kind = "request"     // one remote call finished
	KindAttempt    Kind = "attempt"     // a registration attempt is about to sleep
	KindCode       Kind = "code"        // a code was obtained and handed to the store
	KindWorkerDone Kind = "worker_done" // a worker produced all requested keys
	KindBatchDone  Kind = "batch_done"  // every worker of the batch has returned
)

// Severity is a display hint for log-like events.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StoreOutcome records what the dedup store did with a generated code.
type StoreOutcome string

const (
	StoreInserted  StoreOutcome = "inserted"
	StoreDuplicate StoreOutcome = "duplicate"
	StoreFailed    StoreOutcome = "store_error"
)

// Event is a single progress or log record emitted by a worker or the coordinator.
type Event struct {
	WorkerID  int
	Worker    string
	Game      string
	Timestamp time.Time
	Kind      Kind
	Severity  Severity
	Message   string

	// Request events.
	Step       string
	Duration   time.Duration
	Success    bool
	StatusCode int
	Outcome    string // registration outcome or error class

	// Attempt events.
	Attempt int
	Delay   time.Duration

	// Code events.
	Code     string
	Platform string
	Stored   StoreOutcome
}

// EventSink receives events. Implementations must not block the caller for long.
type EventSink interface {
	Report(Event)
}

// Workflow is what the coordinator runs on each worker goroutine.
type Workflow interface {
	Run(ctx context.Context, workerID int, quantity int, sink EventSink) error
}

// NullSink discards all events.
var NullSink EventSink = nullSink{}

type nullSink struct{}

func (nullSink) Report(Event) {}

// MultiSink fans every event out to each of its sinks in order.
type MultiSink []EventSink

func (m MultiSink) Report(e Event) {
	for _, s := range m {
		if s != nil {
			s.Report(e)
		}
	}
}
