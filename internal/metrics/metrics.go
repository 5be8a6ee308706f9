// Package metrics is the backend-neutral metrics facade used by the seeder
// and the catalog API.
//
// Callers record through the helpers (RecordStep, RecordRows, RecordHTTP) and
// never import a vendor package. The backend is passed to every helper; a nil
// backend discards the observation.
package metrics

import (
	"strconv"
	"time"
)

// Metric names. Backends switch on these and drop anything else.
const (
	SeedStepTotal           = "seed_step_total"
	SeedStepDurationSeconds = "seed_step_duration_seconds"
	SeedRowsTotal           = "seed_rows_total"
	HTTPRequestsTotal       = "http_requests_total"
	HTTPRequestDurationSecs = "http_request_duration_seconds"
)

// Step statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Labels are metric dimensions (step, status, kind, route, ...).
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

func or(b Backend) Backend {
	if b == nil {
		return Nop{}
	}
	return b
}

// RecordStep counts one pipeline step outcome and observes its duration.
func RecordStep(b Backend, step string, err error, d time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	l := Labels{"step": step, "status": status}
	b = or(b)
	b.IncCounter(SeedStepTotal, 1, l)
	b.ObserveHistogram(SeedStepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows written to one destination table.
func RecordRows(b Backend, table string, n int64) {
	if n <= 0 {
		return
	}
	or(b).IncCounter(SeedRowsTotal, float64(n), Labels{"kind": table})
}

// RecordHTTP counts one served request and observes its latency.
func RecordHTTP(b Backend, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	l := Labels{"route": route, "status": strconv.Itoa(status)}
	b = or(b)
	b.IncCounter(HTTPRequestsTotal, 1, l)
	b.ObserveHistogram(HTTPRequestDurationSecs, d.Seconds(), l)
}
