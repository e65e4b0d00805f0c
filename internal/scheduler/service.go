package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "dfwatch/pkg/logx"
)

// DefaultMinInterval is the shortest interval a job may run at.
const DefaultMinInterval = time.Second

type Option func(*Service)

// WithMinInterval overrides DefaultMinInterval.
func WithMinInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.min = d
		}
	}
}

type jobDef struct {
	name    string
	every   IntervalFunc
	run     func(ctx context.Context) error
	entryID cron.EntryID
}

// EntryInfo describes a registered job.
type EntryInfo struct {
	Name string
	Next time.Time
	Prev time.Time
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	min time.Duration

	c    *cron.Cron
	defs []*jobDef

	// tickMu serializes ticks across all jobs.
	tickMu sync.Mutex

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, min: DefaultMinInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers (or replaces) the job called name. Jobs added before Start
// are registered when Start runs.
func (s *Service) Add(name string, every IntervalFunc, run func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if every == nil || run == nil {
		return errors.New("interval and job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name so repeated registration never duplicates a job.
	s.removeLocked(name)
	d := &jobDef{name: name, every: every, run: run}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	return nil
}

// Remove unschedules the job called name and reports whether it existed.
// A tick that is already running finishes normally.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *jobDef) {
	d.entryID = s.c.Schedule(liveSchedule{every: d.every, min: s.min}, s.wrap(d))
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.Duration("every", d.every()))
}

func (s *Service) wrap(d *jobDef) cron.Job {
	return cron.FuncJob(func() {
		s.tickMu.Lock()
		defer s.tickMu.Unlock()

		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := s.runTick(ctx, d)
		took := time.Since(start)
		if err != nil {
			s.log.Warn("tick failed", logx.String("job", d.name), logx.Duration("took", took), logx.Err(err))
			return
		}
		s.log.Trace("tick done", logx.String("job", d.name), logx.Duration("took", took))
	})
}

// runTick converts a panic into an error so the job stays scheduled.
func (s *Service) runTick(ctx context.Context, d *jobDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.run(ctx)
}

// Start begins triggering. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cl := cronLogger{log: s.log}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithLogger(cl),
		// Recover sits inside SkipIfStillRunning so a panic still releases
		// the job's running slot.
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)
	for _, d := range s.defs {
		s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.defs)))
}

// Stop removes every job, cancels the context handed to running ticks and
// waits for them until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	names := make([]string, 0, len(s.defs))
	for _, d := range s.defs {
		names = append(names, d.name)
	}
	s.mu.Unlock()

	for _, n := range names {
		s.Remove(n)
	}
	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			s.log.Warn("scheduler stop timed out; abandoning running tick")
		}
	}

	s.mu.Lock()
	s.c = nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Entries lists registered jobs in registration order.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := EntryInfo{Name: d.name}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	return out
}
