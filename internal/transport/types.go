package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	// UpdateJoined is emitted when the bot becomes a member of a chat.
	UpdateJoined UpdateKind = "joined"
	// UpdateLeft is emitted when the bot is removed from (or leaves) a chat.
	UpdateLeft UpdateKind = "left"
)

// Update is a membership change observed by an adapter.
type Update struct {
	Kind   UpdateKind
	Target ChatTarget
	Title  string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// String renders the target as "chat" or "chat:thread". It is also the key
// used to order deliveries.
func (t ChatTarget) String() string {
	s := strconv.FormatInt(t.ChatID, 10)
	if t.ThreadID != 0 {
		s += ":" + strconv.Itoa(t.ThreadID)
	}
	return s
}

// ParseChatTarget parses "chat" or "chat:thread". Chat ids may be negative
// (groups and channels).
func ParseChatTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("chat target is empty")
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id in %q", raw)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		th, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || th <= 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id in %q", raw)
		}
		t.ThreadID = th
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// ParseModeHTML is Telegram's HTML parse mode.
const ParseModeHTML = "HTML"

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers text to a single chat target.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
