package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type observation struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	counters []observation
	hists    []observation
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, observation{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists = append(r.hists, observation{name, value, labels})
}

func TestRecordStep_StatusFromError(t *testing.T) {
	r := &recorder{}

	RecordStep(r, "dimensions-seeded", nil, 1500*time.Millisecond)
	RecordStep(r, "row-counts-validated", errors.New("mismatch"), time.Second)

	if len(r.counters) != 2 || len(r.hists) != 2 {
		t.Fatalf("counters=%d hists=%d, want 2/2", len(r.counters), len(r.hists))
	}
	if got := r.counters[0]; got.name != SeedStepTotal || got.labels["status"] != StatusOK || got.labels["step"] != "dimensions-seeded" {
		t.Fatalf("unexpected ok counter: %+v", got)
	}
	if got := r.counters[1].labels["status"]; got != StatusError {
		t.Fatalf("status=%q, want %q", got, StatusError)
	}
	if got := r.hists[0]; got.name != SeedStepDurationSeconds || got.value != 1.5 {
		t.Fatalf("unexpected histogram: %+v", got)
	}
}

func TestRecordRows_SkipsEmpty(t *testing.T) {
	r := &recorder{}

	RecordRows(r, "courses", 0)
	RecordRows(r, "courses", 6)

	if len(r.counters) != 1 {
		t.Fatalf("counters=%d, want 1", len(r.counters))
	}
	if got := r.counters[0]; got.name != SeedRowsTotal || got.value != 6 || got.labels["kind"] != "courses" {
		t.Fatalf("unexpected counter: %+v", got)
	}
}

func TestRecordHTTP_Labels(t *testing.T) {
	r := &recorder{}

	RecordHTTP(r, "/courses/:id", 404, 20*time.Millisecond)
	RecordHTTP(r, "", 404, time.Millisecond)

	if got := r.counters[0].labels; got["route"] != "/courses/:id" || got["status"] != "404" {
		t.Fatalf("labels=%v", got)
	}
	if got := r.counters[1].labels["route"]; got != "unmatched" {
		t.Fatalf("route=%q, want unmatched", got)
	}
}

func TestRecord_NilBackendDiscards(t *testing.T) {
	t.Parallel()

	RecordStep(nil, "audit", nil, time.Second)
	RecordRows(nil, "levels", 3)
	RecordHTTP(nil, "/health", 200, time.Millisecond)
}
