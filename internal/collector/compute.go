package collector

import (
	"sort"
	"time"

	"promokeys/internal/core"
)

// Summary is the aggregated view of a batch.
type Summary struct {
	Duration time.Duration

	Codes       []CodeRecord
	Inserted    int
	Duplicates  int
	StoreErrors int

	Requests        int
	RequestFailures int
	Steps           map[string]*StepMetrics
	// Outcomes counts register_event results by name (granted, pending, ...).
	Outcomes map[string]int

	Attempts    int
	Warnings    int
	Errors      int
	Workers     map[string]*WorkerSummary
	WorkersDone int

	BatchDone    bool
	BatchSuccess bool
	BatchMessage string

	Dropped int64
}

// CodeRecord is one generated code in arrival order.
type CodeRecord struct {
	Worker   string            `json:"worker"`
	Code     string            `json:"code"`
	Platform string            `json:"platform"`
	Stored   core.StoreOutcome `json:"stored"`
}

// WorkerSummary is the per-worker slice of a Summary.
type WorkerSummary struct {
	Name      string        `json:"name"`
	Game      string        `json:"game"`
	Attempts  int           `json:"attempts"`
	Codes     int           `json:"codes"`
	LastDelay time.Duration `json:"lastDelay"`
	Done      bool          `json:"done"`
}

// Produced is the number of codes obtained, stored or not.
func (s *Summary) Produced() int {
	return len(s.Codes)
}

// WorkerNames returns worker names in sorted order.
func (s *Summary) WorkerNames() []string {
	names := make([]string, 0, len(s.Workers))
	for name := range s.Workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeSummary aggregates events. Pure function, no side effects.
func ComputeSummary(events []core.Event, duration time.Duration) *Summary {
	s := &Summary{
		Duration: duration,
		Steps:    make(map[string]*StepMetrics),
		Outcomes: make(map[string]int),
		Workers:  make(map[string]*WorkerSummary),
	}
	stepDurations := make(map[string][]time.Duration)

	for _, e := range events {
		w := s.worker(e)

		switch e.Kind {
		case core.KindRequest:
			s.Requests++
			if !e.Success {
				s.RequestFailures++
			}
			step, ok := s.Steps[e.Step]
			if !ok {
				step = &StepMetrics{}
				s.Steps[e.Step] = step
			}
			step.Count++
			if e.Success {
				step.Success++
			} else {
				step.Failed++
			}
			stepDurations[e.Step] = append(stepDurations[e.Step], e.Duration)
			if e.Step == "register_event" && e.Outcome != "" {
				s.Outcomes[e.Outcome]++
			}

		case core.KindAttempt:
			s.Attempts++
			if w != nil {
				w.Attempts++
				w.LastDelay = e.Delay
			}

		case core.KindCode:
			s.Codes = append(s.Codes, CodeRecord{
				Worker:   e.Worker,
				Code:     e.Code,
				Platform: e.Platform,
				Stored:   e.Stored,
			})
			switch e.Stored {
			case core.StoreDuplicate:
				s.Duplicates++
			case core.StoreFailed:
				s.StoreErrors++
			default:
				s.Inserted++
			}
			if w != nil {
				w.Codes++
			}

		case core.KindWorkerDone:
			s.WorkersDone++
			if w != nil {
				w.Done = true
			}

		case core.KindBatchDone:
			s.BatchDone = true
			s.BatchSuccess = e.Success
			s.BatchMessage = e.Message

		case core.KindLog:
			switch e.Severity {
			case core.SeverityWarning:
				s.Warnings++
			case core.SeverityError:
				s.Errors++
			}
		}
	}

	for step, durations := range stepDurations {
		s.Steps[step].Duration = ComputeDurationMetrics(durations)
	}
	return s
}

func (s *Summary) worker(e core.Event) *WorkerSummary {
	if e.Worker == "" {
		return nil
	}
	w, ok := s.Workers[e.Worker]
	if !ok {
		w = &WorkerSummary{Name: e.Worker, Game: e.Game}
		s.Workers[e.Worker] = w
	}
	return w
}
