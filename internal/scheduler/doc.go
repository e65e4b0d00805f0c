// Package scheduler runs named periodic jobs on robfig/cron.
//
// Intervals are not fixed at registration: each job carries an IntervalFunc
// that cron consults every time it computes the job's next run, so a config
// reload takes effect at the following reschedule.
//
// Ticks never overlap. A job that is still running skips its next trigger,
// and a scheduler-wide lock keeps different jobs from running at the same
// time.
package scheduler
