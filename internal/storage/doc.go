// Package storage keeps an append-only audit of announcements.
//
// It never stores dedupe state: the monitor rebuilds that in memory after
// every start. Two drivers exist, a JSON Lines file and SQLite.
package storage
