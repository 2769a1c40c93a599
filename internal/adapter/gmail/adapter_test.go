package gmail

import (
	"sort"
	"testing"
	"time"
)

func TestLabelID(t *testing.T) {
	cases := map[string]string{
		"":              "INBOX",
		"Inbox":         "INBOX",
		"sent":          "SENT",
		"Sent Items":    "SENT",
		"Drafts":        "DRAFT",
		"Trash":         "TRASH",
		"deleted items": "TRASH",
		"Spam":          "SPAM",
		"All Mail":      "ALL",
		"Label_42":      "Label_42",
	}
	for folder, want := range cases {
		if got := labelID(folder); got != want {
			t.Errorf("labelID(%q) = %q, want %q", folder, got, want)
		}
	}
}

func TestFlagsFromLabels(t *testing.T) {
	cases := []struct {
		name   string
		labels []string
		want   []string
	}{
		{"read message", []string{"INBOX"}, []string{"seen"}},
		{"unread message", []string{"INBOX", "UNREAD"}, nil},
		{"starred unread", []string{"UNREAD", "STARRED"}, []string{"flagged"}},
		{"read draft", []string{"DRAFT"}, []string{"draft", "seen"}},
	}
	for _, tc := range cases {
		got := flagsFromLabels(tc.labels)
		sort.Strings(got)
		want := append([]string(nil), tc.want...)
		sort.Strings(want)
		if len(got) != len(want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}
}

func TestParseMillis(t *testing.T) {
	got := parseMillis("1756710000000")
	if got == nil {
		t.Fatal("expected parsed timestamp")
	}
	want := time.UnixMilli(1756710000000).UTC()
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	for _, bad := range []string{"", "abc", "0", "-5"} {
		if parseMillis(bad) != nil {
			t.Errorf("expected nil for %q", bad)
		}
	}
}

func TestDecodeRaw(t *testing.T) {
	// base64url without padding, the modern API form.
	raw, err := decodeRaw("aGVsbG8gd29ybGQ")
	if err != nil {
		t.Fatalf("decodeRaw: %v", err)
	}
	if string(raw) != "hello world" {
		t.Errorf("unexpected decode: %q", raw)
	}

	// Padded output from older surfaces still decodes.
	raw, err = decodeRaw("aGVsbG8=")
	if err != nil {
		t.Fatalf("decodeRaw padded: %v", err)
	}
	if string(raw) != "hello" {
		t.Errorf("unexpected padded decode: %q", raw)
	}
}
