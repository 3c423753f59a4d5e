package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"promokeys/internal/core"
)

// FormatText writes the summary in human-readable format.
func FormatText(w io.Writer, s *Summary) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Promo Keys - Batch Summary")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Workers:        %d done / %d seen\n", s.WorkersDone, len(s.Workers))
	fmt.Fprintf(w, "Codes:          %s (%d new, %d duplicate, %d not saved)\n",
		formatNumber(s.Produced()), s.Inserted, s.Duplicates, s.StoreErrors)
	fmt.Fprintf(w, "Attempts:       %s\n", formatNumber(s.Attempts))
	if s.Requests > 0 {
		fmt.Fprintf(w, "Requests:       %s (%s failed)\n", formatNumber(s.Requests), formatNumber(s.RequestFailures))
	}
	if s.Dropped > 0 {
		fmt.Fprintf(w, "Dropped events: %d\n", s.Dropped)
	}

	if len(s.Outcomes) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Registration Outcomes:")
		for _, name := range sortedKeys(s.Outcomes) {
			fmt.Fprintf(w, "  %-15s %s\n", name, formatNumber(s.Outcomes[name]))
		}
	}

	if len(s.Steps) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "By Request:")
		for _, step := range sortedKeys(s.Steps) {
			sm := s.Steps[step]
			fmt.Fprintf(w, "  %-15s %s reqs   avg=%s  p95=%s  p99=%s\n",
				step, formatNumber(sm.Count),
				FormatDuration(sm.Duration.Avg),
				FormatDuration(sm.Duration.P95),
				FormatDuration(sm.Duration.P99))
		}
	}

	if len(s.Codes) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Codes:")
		for _, c := range s.Codes {
			fmt.Fprintf(w, "  %s  %-10s %-10s %s\n", storedSymbol(c.Stored), c.Platform, c.Stored, c.Code)
		}
	}

	if s.BatchDone {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, s.BatchMessage)
	}
}

func storedSymbol(stored core.StoreOutcome) string {
	switch stored {
	case core.StoreInserted:
		return "✓"
	case core.StoreDuplicate:
		return "="
	default:
		return "✗"
	}
}

// FormatJSON writes the summary in JSON format.
func FormatJSON(w io.Writer, s *Summary) {
	workers := make([]*WorkerSummary, 0, len(s.Workers))
	for _, name := range s.WorkerNames() {
		workers = append(workers, s.Workers[name])
	}
	codes := s.Codes
	if codes == nil {
		codes = []CodeRecord{}
	}

	output := struct {
		Duration        string                     `json:"duration"`
		Produced        int                        `json:"produced"`
		Inserted        int                        `json:"inserted"`
		Duplicates      int                        `json:"duplicates"`
		StoreErrors     int                        `json:"storeErrors"`
		Attempts        int                        `json:"attempts"`
		Requests        int                        `json:"requests"`
		RequestFailures int                        `json:"requestFailures"`
		Outcomes        map[string]int             `json:"outcomes"`
		Steps           map[string]jsonStepMetrics `json:"steps"`
		Codes           []CodeRecord               `json:"codes"`
		Workers         []*WorkerSummary           `json:"workers"`
		WorkersDone     int                        `json:"workersDone"`
		BatchDone       bool                       `json:"batchDone"`
		BatchSuccess    bool                       `json:"batchSuccess"`
		Dropped         int64                      `json:"dropped,omitempty"`
	}{
		Duration:        s.Duration.Round(time.Millisecond).String(),
		Produced:        s.Produced(),
		Inserted:        s.Inserted,
		Duplicates:      s.Duplicates,
		StoreErrors:     s.StoreErrors,
		Attempts:        s.Attempts,
		Requests:        s.Requests,
		RequestFailures: s.RequestFailures,
		Outcomes:        s.Outcomes,
		Steps:           make(map[string]jsonStepMetrics),
		Codes:           codes,
		Workers:         workers,
		WorkersDone:     s.WorkersDone,
		BatchDone:       s.BatchDone,
		BatchSuccess:    s.BatchSuccess,
		Dropped:         s.Dropped,
	}

	for step, sm := range s.Steps {
		output.Steps[step] = jsonStepMetrics{
			Count:       sm.Count,
			Success:     sm.Success,
			Failed:      sm.Failed,
			SuccessRate: float64(sm.Success) / float64(sm.Count) * 100,
			Durations:   toJSONDurationMetrics(sm.Duration),
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonStepMetrics struct {
	Count       int                 `json:"count"`
	Success     int                 `json:"success"`
	Failed      int                 `json:"failed"`
	SuccessRate float64             `json:"successRate"`
	Durations   jsonDurationMetrics `json:"durations"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
