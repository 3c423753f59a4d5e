package metrics

import (
	"strconv"
	"sync"

	"promokeys/internal/core"
)

// Recorder is an EventSink that updates the package metrics.
type Recorder struct {
	mu     sync.Mutex
	active map[string]string // worker name -> game
}

func NewRecorder() *Recorder {
	return &Recorder{active: make(map[string]string)}
}

func (r *Recorder) Report(e core.Event) {
	r.track(e)

	switch e.Kind {
	case core.KindAttempt:
		AttemptsTotal.WithLabelValues(e.Game).Inc()
		RegistrationDelay.WithLabelValues(e.Game, e.Worker).Set(e.Delay.Seconds())
	case core.KindRequest:
		RequestsTotal.WithLabelValues(e.Game, e.Step, strconv.FormatBool(e.Success)).Inc()
		RequestDuration.WithLabelValues(e.Game, e.Step).Observe(e.Duration.Seconds())
		if e.Step == "register_event" && e.Outcome != "" {
			RegisterResultsTotal.WithLabelValues(e.Game, e.Outcome).Inc()
		}
	case core.KindCode:
		CodesTotal.WithLabelValues(e.Game, string(e.Stored)).Inc()
	case core.KindWorkerDone:
		WorkersDoneTotal.WithLabelValues(e.Game).Inc()
	case core.KindBatchDone:
		r.reset()
	}
}

// track keeps ActiveWorkers in step with the workers seen so far.
func (r *Recorder) track(e core.Event) {
	if e.Worker == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, seen := r.active[e.Worker]
	switch {
	case e.Kind == core.KindWorkerDone && seen:
		delete(r.active, e.Worker)
		ActiveWorkers.WithLabelValues(e.Game).Dec()
	case e.Kind != core.KindWorkerDone && !seen:
		r.active[e.Worker] = e.Game
		ActiveWorkers.WithLabelValues(e.Game).Inc()
	}
}

// reset clears workers that stopped without finishing, e.g. on cancellation.
func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for worker, game := range r.active {
		ActiveWorkers.WithLabelValues(game).Dec()
		delete(r.active, worker)
	}
}
