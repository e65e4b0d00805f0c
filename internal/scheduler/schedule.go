package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalFunc reports a job's current interval.
type IntervalFunc func() time.Duration

// Fixed returns an IntervalFunc for a constant interval.
func Fixed(d time.Duration) IntervalFunc { return func() time.Duration { return d } }

// liveSchedule is a cron.Schedule whose period is re-read on every call.
type liveSchedule struct {
	every IntervalFunc
	min   time.Duration
}

var _ cron.Schedule = liveSchedule{}

// Next is called by cron as a tick starts, with t the tick's start time, so
// an interval change takes effect from the following tick.
func (s liveSchedule) Next(t time.Time) time.Time {
	d := s.every()
	if d < s.min {
		d = s.min
	}
	return t.Add(d)
}
