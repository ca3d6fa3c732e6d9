package domain

import (
	"testing"
	"time"
)

func TestIsLinkText(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"hello", false},
		{"", false},
		{"ftp://example.com", false},
		{"https://example.com and more", false},
		{"see https://example.com", false},
		{"https://", false},
		{"example.com", false},
	}
	for _, c := range cases {
		if got := IsLinkText(c.text); got != c.want {
			t.Errorf("IsLinkText(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestExpireAtFor(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := ExpireAtFor(now, 0); got != nil {
		t.Fatalf("zero minutes must not expire, got %v", got)
	}
	if got := ExpireAtFor(now, -3); got != nil {
		t.Fatalf("negative minutes must not expire, got %v", got)
	}
	got := ExpireAtFor(now, 5)
	if got == nil || !got.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected expiry %v", got)
	}
}

func TestMessageExpired(t *testing.T) {
	now := time.Now()
	m := Message{}
	if m.Expired(now) {
		t.Fatal("message without expiry reported expired")
	}
	past := now.Add(-time.Second)
	m.ExpireAt = &past
	if !m.Expired(now) {
		t.Fatal("past expiry not reported")
	}
	future := now.Add(time.Minute)
	m.ExpireAt = &future
	if m.Expired(now) {
		t.Fatal("future expiry reported expired")
	}
}

func TestWhiteboardGroup(t *testing.T) {
	if g := WhiteboardGroup("c7"); g != "whiteboard:c7" {
		t.Fatalf("group = %q", g)
	}
	if ChannelOrDefault("") != DefaultChannelID {
		t.Fatal("empty channel must fall back to default")
	}
}
