package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines audit file next to Path
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one dispatch of a batch to one target.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Source   string    `json:"source"`
	Action   string    `json:"action"`
	Target   string    `json:"target"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	OK       int       `json:"ok"`
	Fail     int       `json:"fail"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
	Summary  string    `json:"summary,omitempty"`
}
