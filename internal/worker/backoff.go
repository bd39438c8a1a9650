package worker

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fixedSchedule implements backoff.BackOff over spec.md §4.6's literal
// retry schedule ([1, 2, 4, 8, 16] seconds: up to 5 retries after the first
// attempt, 6 attempts in all) rather than
// cenkalti/backoff's default exponential curve, which doesn't land on
// those exact values.
type fixedSchedule struct {
	intervals []time.Duration
	pos       int
}

// newFixedSchedule builds the spec.md §4.6 backoff as a cenkalti/backoff/v4
// BackOff, so the worker can drive it with backoff.Retry like any other
// cenkalti-based retry loop in the pack.
func newFixedSchedule() backoff.BackOff {
	return &fixedSchedule{
		intervals: []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
		},
	}
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.pos >= len(f.intervals) {
		return backoff.Stop
	}
	d := f.intervals[f.pos]
	f.pos++
	return d
}

func (f *fixedSchedule) Reset() {
	f.pos = 0
}
