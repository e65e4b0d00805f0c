package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := Notifier{notify: rec.notify}
	_, _ = n.Ready()
	_, _ = n.Status("epoch 501")
	_, _ = n.Stopping()

	got := rec.all()
	want := []string{daemon.SdNotifyReady, "STATUS=epoch 501", daemon.SdNotifyStopping}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWatchdogPingsUntilCancelled(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := Notifier{notify: rec.notify}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Watchdog(ctx, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	for _, s := range rec.all() {
		if s != daemon.SdNotifyWatchdog {
			t.Fatalf("unexpected state %q", s)
		}
	}
	if len(rec.all()) < 2 {
		t.Fatalf("expected at least 2 pings, got %d", len(rec.all()))
	}
}

func TestUnsupervisedIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	ok, err := Notifier{}.Ready()
	if ok || err != nil {
		t.Fatalf("Ready() = %v, %v; want false, nil", ok, err)
	}
}
