package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"dfwatch/pkg/tgui"
)

func TestIssue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  tgui.H
		want string
	}{
		{
			name: "example",
			got:  Issue("0001234", "FIXED", " Crash on load", "Toady One", " (resolved)", "http://bay12.test/view.php?id=1234"),
			want: "<b>0001234: FIXED</b> Crash on load Toady One (resolved) ( http://bay12.test/view.php?id=1234 )",
		},
		{
			name: "bracketed fixer",
			got:  Issue("0001234", "[Crash]", " Crash on load (", "Toady One", ") - resolved", "view.php?id=1234"),
			want: "<b>0001234: [Crash]</b> Crash on load (Toady One) - resolved ( view.php?id=1234 )",
		},
		{
			name: "fixer without status",
			got:  Issue("5", "FIXED", "Title", "Toady One", "", ""),
			want: "<b>5: FIXED</b> Title Toady One",
		},
		{
			name: "escapes markup",
			got:  Issue("7", "<i>", "a & b", "x", "", ""),
			want: "<b>7: &lt;i&gt;</b> a &amp; b x",
		},
		{
			name: "bare header",
			got:  Issue("9", "NEW", " ", "", "", ""),
			want: "<b>9: NEW</b>",
		},
	}
	for _, tc := range cases {
		if tc.got.String() != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestReleaseAndNote(t *testing.T) {
	t.Parallel()
	if got := Release("", "0.47.05"); got != "<b>Dwarf Fortress v0.47.05 has been released!</b>" {
		t.Fatalf("Release = %q", got)
	}
	if got := Release("Armok", "1.0"); got != "<b>Armok v1.0 has been released!</b>" {
		t.Fatalf("Release = %q", got)
	}
	if got := ClosingNote(`"fixed <really>"`); got != "&#34;fixed &lt;really&gt;&#34;" {
		t.Fatalf("ClosingNote = %q", got)
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()
	in := "<p>Hello &amp; <b>world</b></p><p>Second<br/>line</p>  <script>x()</script>"
	got := HTMLToText(in)
	if got != "Hello & world\nSecond\nline" {
		t.Fatalf("HTMLToText = %q", got)
	}
}

func TestDevlogShortEntry(t *testing.T) {
	t.Parallel()
	got := Devlog("Dev Log", "2024-05-01", "<p>Fixed <i>cats</i>.</p>", "http://p", DevlogOptions{MaxLineChars: 400, MaxLines: 5})
	if len(got) != 1 {
		t.Fatalf("lines = %d (%q)", len(got), got)
	}
	if want := "<b>Dev Log 2024-05-01:</b> Fixed cats."; got[0].String() != want {
		t.Fatalf("got %q, want %q", got[0], want)
	}
}

func TestDevlogHeaderSpansLines(t *testing.T) {
	t.Parallel()
	got := Devlog("Dwarf", "Devlog", "hi", "", DevlogOptions{MaxLineChars: 8, MaxLines: 5})
	want := []string{"<b>Dwarf</b>", "<b>Devlog:</b>", "hi"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDevlogWrapAndTruncate(t *testing.T) {
	t.Parallel()
	const width, maxLines = 20, 3
	summary := strings.Repeat("urist likes cheese ", 20)

	full := Wrap("Feed Entry: "+HTMLToText(summary), width)
	if len(full) <= maxLines {
		t.Fatalf("fixture wraps to %d lines, need more than %d", len(full), maxLines)
	}

	got := Devlog("Feed", "Entry", summary, "http://bay12.test/dev", DevlogOptions{
		MaxLineChars: width,
		MaxLines:     maxLines,
		Marker:       "...",
	})
	if len(got) != maxLines+1 {
		t.Fatalf("lines = %d, want %d", len(got), maxLines+1)
	}
	for i := 0; i < maxLines; i++ {
		plain := tgui.Plain(got[i])
		if plain != full[i] {
			t.Fatalf("line %d = %q, want %q", i, plain, full[i])
		}
		if n := utf8.RuneCountInString(plain); n > width {
			t.Fatalf("line %d has %d runes, width %d", i, n, width)
		}
	}
	if last := tgui.Plain(got[maxLines]); last != "... http://bay12.test/dev" {
		t.Fatalf("marker line = %q", last)
	}
}

func TestWrapHardBreaksLongWords(t *testing.T) {
	t.Parallel()
	got := Wrap(strings.Repeat("x", 25)+"\n\n  \nend", 10)
	want := []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx", "end"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Wrap = %q, want %q", got, want)
	}
}
