package notifier

import "time"

// Config controls delivery. Zero values fall back to defaults.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	HistorySize int
}

const (
	DefaultRatePerSec  = 3
	DefaultSendTimeout = 10 * time.Second
	DefaultHistorySize = 50
)

type HistoryItem struct {
	At     time.Time
	Source string
	Target string
	Text   string
}

// NotificationEvent is published for every message sent or failed.
type NotificationEvent struct {
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
