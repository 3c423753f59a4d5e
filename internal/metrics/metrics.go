// Package metrics exposes batch progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AttemptsTotal tracks registration attempts that were scheduled.
var AttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promokeys_register_attempts_total",
		Help: "Total registration attempts",
	},
	[]string{"game"},
)

// RegisterResultsTotal tracks register-event outcomes.
var RegisterResultsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promokeys_register_results_total",
		Help: "Register event outcomes by result",
	},
	[]string{"game", "result"},
)

// RequestsTotal tracks remote calls by operation and success.
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promokeys_requests_total",
		Help: "Total remote calls",
	},
	[]string{"game", "step", "success"},
)

// RequestDuration tracks remote call latency.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "promokeys_request_duration_seconds",
		Help:    "Remote call latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"game", "step"},
)

// CodesTotal tracks generated codes by what the store did with them.
var CodesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promokeys_codes_total",
		Help: "Generated codes by store outcome",
	},
	[]string{"game", "stored"},
)

// WorkersDoneTotal tracks workers that produced every requested key.
var WorkersDoneTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promokeys_workers_done_total",
		Help: "Workers that finished their quota",
	},
	[]string{"game"},
)

// ActiveWorkers tracks workers that have reported but not finished.
var ActiveWorkers = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "promokeys_active_workers",
		Help: "Current active workers",
	},
	[]string{"game"},
)

// RegistrationDelay tracks the latest pre-registration delay per worker.
var RegistrationDelay = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "promokeys_registration_delay_seconds",
		Help: "Latest delay before a registration attempt",
	},
	[]string{"game", "worker"},
)
