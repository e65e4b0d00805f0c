// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify states. The zero value talks to $NOTIFY_SOCKET.
type Notifier struct {
	// notify is swapped in tests.
	notify func(state string) (bool, error)
}

func (n Notifier) send(state string) (bool, error) {
	if n.notify != nil {
		return n.notify(state)
	}
	return daemon.SdNotify(false, state)
}

func (n Notifier) Ready() (bool, error)     { return n.send(daemon.SdNotifyReady) }
func (n Notifier) Stopping() (bool, error)  { return n.send(daemon.SdNotifyStopping) }
func (n Notifier) Reloading() (bool, error) { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(msg string) (bool, error) {
	return n.send("STATUS=" + msg)
}

// WatchdogInterval returns how often the watchdog must be pinged, or 0 when
// the unit has no WatchdogSec.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Watchdog pings the watchdog at half the interval until ctx is done.
func (n Notifier) Watchdog(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = n.send(daemon.SdNotifyWatchdog)
		}
	}
}
