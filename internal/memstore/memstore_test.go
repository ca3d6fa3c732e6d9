package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

func TestMessages_RecentAndPage(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, text := range []string{"a", "b", "c", "d"} {
		if err := s.Messages.Create(ctx, &domain.Message{ChannelID: "c1", AuthorID: "u1", Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.Messages.Create(ctx, &domain.Message{ChannelID: "c2", AuthorID: "u1", Text: "other"})

	recent, _ := s.Messages.ListRecent(ctx, "c1", 3)
	if len(recent) != 3 || recent[0].Text != "b" || recent[2].Text != "d" {
		t.Fatalf("recent = %+v", recent)
	}

	page, _ := s.Messages.ListPage(ctx, "c1", 3, 10)
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestMessages_DeleteOwned(t *testing.T) {
	ctx := context.Background()
	s := New()
	m := &domain.Message{ChannelID: "c1", AuthorID: "u1"}
	_ = s.Messages.Create(ctx, m)

	if ok, _ := s.Messages.DeleteOwned(ctx, m.ID, "u2"); ok {
		t.Fatal("foreign delete succeeded")
	}
	if ok, _ := s.Messages.DeleteOwned(ctx, m.ID, "u1"); !ok {
		t.Fatal("owner delete failed")
	}
	if ok, _ := s.Messages.Delete(ctx, m.ID); ok {
		t.Fatal("second delete reported success")
	}
	if _, err := s.Messages.Get(ctx, m.ID); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMessages_ListExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	_ = s.Messages.Create(ctx, &domain.Message{ChannelID: "c1", ExpireAt: &past})
	_ = s.Messages.Create(ctx, &domain.Message{ChannelID: "c1", ExpireAt: &future})
	_ = s.Messages.Create(ctx, &domain.Message{ChannelID: "c1"})

	got, _ := s.Messages.ListExpired(ctx, now, 10)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expired = %+v", got)
	}
}

func TestChannels_Whiteboard(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Channels.Put(domain.Channel{ID: "wb", Type: domain.ChannelWhiteboard})

	if snap, err := s.Channels.LoadWhiteboard(ctx, "wb"); err != nil || snap != nil {
		t.Fatalf("fresh board = %s, %v", snap, err)
	}
	if err := s.Channels.SaveWhiteboard(ctx, "wb", json.RawMessage(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Channels.LoadWhiteboard(ctx, "wb")
	if string(snap) != `{"v":1}` {
		t.Fatalf("snapshot = %s", snap)
	}
	if err := s.Channels.SaveWhiteboard(ctx, "nope", nil); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("missing channel: %v", err)
	}
}

func TestUsers_StatusAndList(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Users.Create(ctx, &domain.User{ID: "2", Name: "bob"})
	_ = s.Users.Create(ctx, &domain.User{ID: "1", Name: "alice"})

	if err := s.Users.UpdateStatus(ctx, "1", domain.StatusOnline); err != nil {
		t.Fatal(err)
	}
	if err := s.Users.UpdateStatus(ctx, "x", domain.StatusOnline); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	list, _ := s.Users.List(ctx)
	if len(list) != 2 || list[0].Name != "alice" || list[0].Status != domain.StatusOnline {
		t.Fatalf("list = %+v", list)
	}
}
