package eventbus

// Event types published by dfwatch components.
const (
	TypeRollover     = "changelog.rollover"
	TypeIssue        = "changelog.issue"
	TypeDevlogEntry  = "devlog.entry"
	TypeNotifySent   = "notify.sent"
	TypeNotifyFailed = "notify.failed"
)

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Data: data})
}
