package transport

import "testing"

func TestParseChatTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    ChatTarget
		wantErr bool
	}{
		{in: "-1001234", want: ChatTarget{ChatID: -1001234}},
		{in: " 42:7 ", want: ChatTarget{ChatID: 42, ThreadID: 7}},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0", wantErr: true},
		{in: "42:", wantErr: true},
		{in: "42:-1", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseChatTarget(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseChatTarget(%q) = %+v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseChatTarget(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseChatTarget(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if back, _ := ParseChatTarget(got.String()); back != got {
			t.Fatalf("round trip of %q = %+v", got.String(), back)
		}
	}
}
