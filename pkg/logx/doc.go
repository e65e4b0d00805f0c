// Package logx is dfwatch's structured logging on top of zerolog.
//
// Console output is human-readable, file output is JSON lines, and an
// optional Telegram sink forwards warnings and errors to an operator chat.
// A Logger obtained from a Service follows every Service.Apply.
package logx
