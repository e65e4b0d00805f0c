package app

import (
	"dfwatch/internal/notifier"
	"dfwatch/internal/scheduler"
	logx "dfwatch/pkg/logx"
	"dfwatch/pkg/tgui"
)

const reportDeliveries = 5

// lastDeliveries returns up to n of the newest items, newest first.
// items is oldest first, as notifier.Snapshot returns it.
func lastDeliveries(items []notifier.HistoryItem, n int) []notifier.HistoryItem {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	n = min(n, len(items))
	out := make([]notifier.HistoryItem, 0, n)
	for i := len(items) - 1; i >= len(items)-n; i-- {
		out = append(out, items[i])
	}
	return out
}

func deliveryFields(it notifier.HistoryItem) []logx.Field {
	return []logx.Field{
		logx.Time("at", it.At),
		logx.String("source", it.Source),
		logx.String("target", it.Target),
		logx.String("text", tgui.TruncRunes(it.Text, 120)),
	}
}

func jobFields(e scheduler.EntryInfo) []logx.Field {
	fields := []logx.Field{logx.String("job", e.Name)}
	if !e.Prev.IsZero() {
		fields = append(fields, logx.Time("last_run", e.Prev))
	}
	if !e.Next.IsZero() {
		fields = append(fields, logx.Time("next_run", e.Next))
	}
	return fields
}

// logReport writes the scheduled jobs and the most recent deliveries.
// It runs before the scheduler is stopped, while entries still exist.
func (a *App) logReport() {
	for _, e := range a.sched.Entries() {
		a.log.Info("job", jobFields(e)...)
	}
	for _, it := range lastDeliveries(a.notif.Snapshot(), reportDeliveries) {
		a.log.Info("recent delivery", deliveryFields(it)...)
	}
}
