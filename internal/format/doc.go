// Package format turns monitor results into Telegram HTML messages.
//
// Every function returns tgui.H values: emphasis is rendered with <b> and
// all other text is escaped, so callers always send with ParseMode HTML.
package format
