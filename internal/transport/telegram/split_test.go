package telegram

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, tele.ModeHTML)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitTelegramText(in, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d (%q)", len(got), got)
	}
	if got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextAvoidsCuttingTags(t *testing.T) {
	t.Parallel()
	in := "abcdefg<b>x</b>"
	got := splitTelegramText(in, 9, tele.ModeHTML)
	if got[0] != "abcdefg" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if strings.Join(got, "") != in {
		t.Fatalf("chunks lost text: %q", got)
	}
}

func TestMembershipKind(t *testing.T) {
	t.Parallel()
	if k, ok := membershipKind(tele.Administrator); !ok || k != "joined" {
		t.Fatalf("administrator = %q %v", k, ok)
	}
	if k, ok := membershipKind(tele.Kicked); !ok || k != "left" {
		t.Fatalf("kicked = %q %v", k, ok)
	}
	if _, ok := membershipKind(tele.Restricted); ok {
		t.Fatal("restricted should be ignored")
	}
}
