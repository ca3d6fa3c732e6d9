package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	pgconn "github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-sync/config"
	"github.com/cwrk-planet/chat-sync/internal/domain"
	"github.com/cwrk-planet/chat-sync/internal/service"
)

var (
	_ service.MessageStore = (*MessageRepository)(nil)
	_ service.UserStore    = (*UserRepository)(nil)
	_ service.ChannelStore = (*ChannelRepository)(nil)
)

// newTestStore connects to CHAT_TEST_POSTGRES_DSN or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHAT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, config.Postgres{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE messages, users RESTART IDENTITY;`)
	require.NoError(t, err)
	return NewStore(pool)
}

func TestMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	var ids []int64
	for _, txt := range []string{"a", "b", "c"} {
		m := &domain.Message{ChannelID: "c1", AuthorID: "u1", AuthorName: "Ann", Text: txt, CreatedAt: now}
		require.NoError(t, s.Messages.Create(ctx, m))
		ids = append(ids, m.ID)
	}
	assert.Less(t, ids[0], ids[1])

	recent, err := s.Messages.ListRecent(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text)
	assert.Equal(t, "c", recent[1].Text)

	page, err := s.Messages.ListPage(ctx, "c1", ids[2], 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Text)

	ok, err := s.Messages.DeleteOwned(ctx, ids[0], "someone-else")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Messages.DeleteOwned(ctx, ids[0], "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Messages.Delete(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Messages.Get(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	n, err := s.Messages.CountByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMessageAttachmentAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	m := &domain.Message{ChannelID: "c1", AuthorID: "u1", AuthorName: "Ann", CreatedAt: now, ExpireAt: domain.ExpireAtFor(now, 1)}
	m.SetAttachment(domain.Attachment{FilePath: "/uploads/x.png", FileName: "x.png", FileType: "image/png", FileSize: 3})
	require.NoError(t, s.Messages.Create(ctx, m))

	got, err := s.Messages.Get(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.HasFile())
	assert.Equal(t, int64(3), *got.FileSize)

	expired, err := s.Messages.ListExpired(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, m.ID, expired[0].ID)

	bad := &domain.Message{ChannelID: "nope", AuthorID: "u1", AuthorName: "Ann", Text: "x"}
	assert.ErrorIs(t, s.Messages.Create(ctx, bad), domain.ErrChannelNotFound)
}

func TestUsersAndWhiteboard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Users.Create(ctx, &domain.User{ID: "u1", Name: "Ann"}))
	require.NoError(t, s.Users.UpdateStatus(ctx, "u1", domain.StatusOnline))
	u, err := s.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, u.Status)
	assert.ErrorIs(t, s.Users.UpdateStatus(ctx, "ghost", domain.StatusOnline), domain.ErrUserNotFound)

	require.NoError(t, s.Channels.Upsert(ctx, domain.Channel{ID: "wb-test", Name: "board", Type: domain.ChannelWhiteboard}))
	require.NoError(t, s.Channels.SaveWhiteboard(ctx, "wb-test", json.RawMessage(`{"v":1}`)))
	snap, err := s.Channels.LoadWhiteboard(ctx, "wb-test")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(snap))

	assert.ErrorIs(t, s.Channels.SaveWhiteboard(ctx, "missing", json.RawMessage(`{}`)), domain.ErrChannelNotFound)
}

func TestMapPgError(t *testing.T) {
	assert.NoError(t, mapPgError(nil))
	assert.ErrorIs(t, mapPgError(&pgconn.PgError{Code: "23503", ConstraintName: "messages_channel_id_fkey"}), ErrConstraint)
	assert.ErrorIs(t, mapMessageError(&pgconn.PgError{Code: "23503"}), domain.ErrChannelNotFound)

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), mapPgError(other))
}
