package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

func newBoardFixture(t *testing.T, delay time.Duration) (*fixture, *WhiteboardService) {
	t.Helper()
	f := newFixture()
	f.store.Channels.Put(domain.Channel{ID: "wb1", ServerID: 1, Name: "board", Type: domain.ChannelWhiteboard})
	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		_, err := f.presence.ResolveIdentity(ctx, id, id, "")
		require.NoError(t, err)
		require.NoError(t, f.presence.Attach(ctx, "c-"+id, id))
	}
	f.bc.reset()

	wb := NewWhiteboardService(f.store.Channels, f.presence, f.bc, delay)
	t.Cleanup(wb.Close)
	return f, wb
}

func TestJoinBoardSendsSnapshot(t *testing.T) {
	f, wb := newBoardFixture(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, f.store.Channels.SaveWhiteboard(ctx, "wb1", json.RawMessage(`{"v":1}`)))

	snap, err := wb.JoinBoard(ctx, "c-u1", "wb1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(snap))
	assert.Equal(t, []string{"c-u1"}, f.bc.joins[domain.WhiteboardGroup("wb1")])

	evs := f.bc.byEvent(domain.EventWhiteboardState)
	require.Len(t, evs, 1)
	assert.Equal(t, "conn:c-u1", evs[0].Group)
}

func TestJoinBoardRejections(t *testing.T) {
	_, wb := newBoardFixture(t, time.Minute)
	ctx := context.Background()

	_, err := wb.JoinBoard(ctx, "ghost", "wb1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = wb.JoinBoard(ctx, "c-u1", "c1")
	assert.ErrorIs(t, err, domain.ErrNotWhiteboard)
	_, err = wb.JoinBoard(ctx, "c-u1", "missing")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestRelayChangeDebouncesSave(t *testing.T) {
	f, wb := newBoardFixture(t, 40*time.Millisecond)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := wb.RelayChange(ctx, "c-u1", domain.WhiteboardUpdatePayload{
			ChannelID:      "wb1",
			CanvasSnapshot: json.RawMessage(`{"v":` + string(rune('0'+i)) + `}`),
		})
		require.NoError(t, err)
	}

	updates := f.bc.byEvent(domain.EventWhiteboardUpdate)
	require.Len(t, updates, 3)
	assert.Equal(t, domain.WhiteboardGroup("wb1"), updates[0].Group)
	assert.Equal(t, "c-u1", updates[0].Exclude)

	require.Eventually(t, func() bool {
		snap, err := wb.LoadBoard(ctx, "wb1")
		return err == nil && string(snap) == `{"v":3}`
	}, time.Second, 5*time.Millisecond)
}

func TestFlushConnectionSavesImmediately(t *testing.T) {
	_, wb := newBoardFixture(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, wb.RelayChange(ctx, "c-u1", domain.WhiteboardUpdatePayload{ChannelID: "wb1", CanvasSnapshot: json.RawMessage(`{"a":1}`)}))
	require.NoError(t, wb.RelayChange(ctx, "c-u2", domain.WhiteboardUpdatePayload{ChannelID: "wb1", CanvasSnapshot: json.RawMessage(`{"b":2}`)}))

	assert.Equal(t, 1, wb.FlushConnection("c-u1"))
	snap, err := wb.LoadBoard(ctx, "wb1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(snap))
	assert.Zero(t, wb.FlushConnection("c-u1"))
}

func TestRelayChangeWithoutSnapshotIsNotSaved(t *testing.T) {
	_, wb := newBoardFixture(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, wb.RelayChange(ctx, "c-u1", domain.WhiteboardUpdatePayload{ChannelID: "wb1", ChangeType: "cursor"}))
	assert.Zero(t, wb.FlushConnection("c-u1"))

	err := wb.RelayChange(ctx, "c-u1", domain.WhiteboardUpdatePayload{})
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	err = wb.RelayChange(ctx, "ghost", domain.WhiteboardUpdatePayload{ChannelID: "wb1"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRelayCursor(t *testing.T) {
	f, wb := newBoardFixture(t, time.Hour)

	require.NoError(t, wb.RelayCursor(context.Background(), "c-u2", domain.CursorPayload{ChannelID: "wb1", X: 1, Y: 2, UserID: "u2"}))
	evs := f.bc.byEvent(domain.EventUserCursor)
	require.Len(t, evs, 1)
	assert.Equal(t, "c-u2", evs[0].Exclude)
}

func TestSaveBoardValidatesJSON(t *testing.T) {
	_, wb := newBoardFixture(t, time.Hour)
	ctx := context.Background()

	assert.ErrorIs(t, wb.SaveBoard(ctx, "wb1", json.RawMessage(`{`)), domain.ErrMalformedPayload)
	require.NoError(t, wb.SaveBoard(ctx, "wb1", json.RawMessage(`{"ok":true}`)))
	assert.ErrorIs(t, wb.SaveBoard(ctx, "missing", json.RawMessage(`{}`)), domain.ErrChannelNotFound)
}
