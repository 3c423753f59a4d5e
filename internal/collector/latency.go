package collector

import (
	"slices"
	"time"
)

// DurationMetrics summarises the round-trip times of one promo API operation
// (login, register_event or create_code) across every worker of a batch.
type DurationMetrics struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// StepMetrics counts the calls made to one promo operation. Failed includes
// transport errors as well as rejected sessions and rate limits.
type StepMetrics struct {
	Count    int             `json:"count"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Duration DurationMetrics `json:"durations"`
}

// ComputePercentile picks the nearest-rank value for fraction p (0..1) from
// latencies already sorted in ascending order.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	return sorted[int(float64(n-1)*p)]
}

// ComputeDurationMetrics builds the latency summary for one operation. The
// input is left untouched.
func ComputeDurationMetrics(latencies []time.Duration) DurationMetrics {
	if len(latencies) == 0 {
		return DurationMetrics{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	pct := func(p float64) time.Duration { return ComputePercentile(sorted, p) }
	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / time.Duration(len(sorted)),
		P50: pct(0.50),
		P90: pct(0.90),
		P95: pct(0.95),
		P99: pct(0.99),
	}
}
