// Package tgui holds small helpers for building Telegram HTML-mode text.
//
// Values of type H are already escaped and can be concatenated safely.
package tgui
