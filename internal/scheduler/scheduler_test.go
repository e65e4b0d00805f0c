package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "dfwatch/pkg/logx"
)

func TestLiveScheduleRereadsInterval(t *testing.T) {
	t.Parallel()
	var cur atomic.Int64
	cur.Store(int64(2 * time.Second))
	s := liveSchedule{every: func() time.Duration { return time.Duration(cur.Load()) }, min: time.Second}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := s.Next(t0); !got.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("Next = %v", got)
	}
	cur.Store(int64(5 * time.Minute))
	if got := s.Next(t0); !got.Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("Next after change = %v", got)
	}
	cur.Store(0)
	if got := s.Next(t0); !got.Equal(t0.Add(time.Second)) {
		t.Fatalf("Next below minimum = %v", got)
	}
}

func TestAddUpsertAndRemove(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.Add("changelog.scrape", Fixed(time.Minute), noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("devlog.poll", Fixed(time.Minute), noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("changelog.scrape", Fixed(time.Hour), noop); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(" ", Fixed(time.Minute), noop); err == nil {
		t.Fatal("empty name accepted")
	}

	es := s.Entries()
	if len(es) != 2 || es[0].Name != "devlog.poll" || es[1].Name != "changelog.scrape" {
		t.Fatalf("entries = %+v", es)
	}
	if !s.Remove("devlog.poll") || s.Remove("devlog.poll") {
		t.Fatal("Remove should succeed once")
	}
	if n := len(s.Entries()); n != 1 {
		t.Fatalf("entries after remove = %d", n)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTicksAreSerializedAndSurvivePanics(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithMinInterval(10*time.Millisecond))

	var (
		running  atomic.Int32
		maxSeen  atomic.Int32
		aRuns    atomic.Int32
		bRuns    atomic.Int32
		panicked atomic.Bool
	)
	track := func(counter *atomic.Int32) func(context.Context) error {
		return func(context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			counter.Add(1)
			time.Sleep(15 * time.Millisecond)
			return nil
		}
	}
	_ = s.Add("a", Fixed(10*time.Millisecond), track(&aRuns))
	_ = s.Add("b", Fixed(10*time.Millisecond), func(ctx context.Context) error {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		return track(&bRuns)(ctx)
	})

	s.Start(context.Background())
	waitFor(t, "both jobs to run", func() bool { return aRuns.Load() >= 2 && bRuns.Load() >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if maxSeen.Load() != 1 {
		t.Fatalf("max concurrent ticks = %d, want 1", maxSeen.Load())
	}
	if len(s.Entries()) != 0 {
		t.Fatal("jobs still registered after Stop")
	}
}

func TestStopCancelsRunningTick(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithMinInterval(10*time.Millisecond))
	started := make(chan struct{})
	var once sync.Once
	cancelled := make(chan struct{})
	_ = s.Add("slow", Fixed(10*time.Millisecond), func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		select {
		case <-cancelled:
		default:
			close(cancelled)
		}
		return ctx.Err()
	})
	s.Start(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("running tick did not observe cancellation")
	}
}

func TestIntervalChangeAppliesOnReschedule(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithMinInterval(time.Millisecond))
	var every atomic.Int64
	every.Store(int64(10 * time.Millisecond))
	var runs atomic.Int32
	_ = s.Add("live", func() time.Duration { return time.Duration(every.Load()) }, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, "first runs", func() bool { return runs.Load() >= 2 })
	every.Store(int64(time.Hour))
	// At most one more run can be pending with the old interval.
	time.Sleep(50 * time.Millisecond)
	n := runs.Load()
	time.Sleep(100 * time.Millisecond)
	if got := runs.Load(); got != n {
		t.Fatalf("runs went from %d to %d after switching to an hourly interval", n, got)
	}
}

func TestPanickingTickKeepsJobScheduled(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), WithMinInterval(10*time.Millisecond))
	var calls atomic.Int32
	_ = s.Add("flaky", Fixed(10*time.Millisecond), func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("parse blew up")
		}
		return nil
	})

	s.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()
	waitFor(t, "ticks after the panic", func() bool { return calls.Load() >= 3 })
}

func TestRunTickReturnsPanicAsError(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	err := s.runTick(context.Background(), &jobDef{name: "x", run: func(context.Context) error { panic("boom") }})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("runTick() = %v, want panic error", err)
	}
}
