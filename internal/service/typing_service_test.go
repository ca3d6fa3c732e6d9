package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

func newTypingFixture(t *testing.T, ttl time.Duration) (*fixture, *TypingService) {
	t.Helper()
	f := newFixture()
	ctx := context.Background()
	_, err := f.presence.ResolveIdentity(ctx, "u1", "Ann", "")
	require.NoError(t, err)
	require.NoError(t, f.presence.Attach(ctx, "c-1", "u1"))
	f.bc.reset()

	ts := NewTypingService(f.presence, f.bc, ttl)
	t.Cleanup(ts.Close)
	return f, ts
}

func TestTypingStartExcludesSender(t *testing.T) {
	f, ts := newTypingFixture(t, time.Minute)

	require.NoError(t, ts.StartTyping(context.Background(), "c-1", "", "Ann"))

	evs := f.bc.byEvent(domain.EventUserTyping)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.DefaultChannelID, evs[0].Group)
	assert.Equal(t, "c-1", evs[0].Exclude)
	assert.Equal(t, domain.TypingPayload{UserID: "u1", UserName: "Ann", ChannelID: "c1"}, evs[0].Payload)
	assert.True(t, ts.Typing("c1", "u1"))
}

func TestTypingRequiresIdentity(t *testing.T) {
	f, ts := newTypingFixture(t, time.Minute)

	assert.ErrorIs(t, ts.StartTyping(context.Background(), "ghost", "c1", "x"), domain.ErrUnauthenticated)
	assert.ErrorIs(t, ts.StopTyping(context.Background(), "ghost", "c1"), domain.ErrUnauthenticated)
	assert.Empty(t, f.bc.byEvent(domain.EventUserTyping))
}

func TestTypingStop(t *testing.T) {
	f, ts := newTypingFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, ts.StartTyping(ctx, "c-1", "c1", "Ann"))
	require.NoError(t, ts.StopTyping(ctx, "c-1", "c1"))

	assert.False(t, ts.Typing("c1", "u1"))
	stops := f.bc.byEvent(domain.EventUserStopTyping)
	require.Len(t, stops, 1)
	assert.Equal(t, "c-1", stops[0].Exclude)
}

func TestTypingTimesOut(t *testing.T) {
	f, ts := newTypingFixture(t, 30*time.Millisecond)

	require.NoError(t, ts.StartTyping(context.Background(), "c-1", "c1", "Ann"))
	require.Eventually(t, func() bool {
		return len(f.bc.byEvent(domain.EventUserStopTyping)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, ts.Typing("c1", "u1"))
}

func TestTypingRenewalExtendsEpisode(t *testing.T) {
	f, ts := newTypingFixture(t, 200*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, ts.StartTyping(ctx, "c-1", "c1", "Ann"))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, ts.StartTyping(ctx, "c-1", "c1", "Ann"))
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, f.bc.byEvent(domain.EventUserStopTyping))

	require.Eventually(t, func() bool {
		return len(f.bc.byEvent(domain.EventUserStopTyping)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTypingClearConnection(t *testing.T) {
	f, ts := newTypingFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, ts.StartTyping(ctx, "c-1", "c1", "Ann"))
	require.NoError(t, ts.StartTyping(ctx, "c-1", "c2", "Ann"))

	assert.Equal(t, 2, ts.ClearConnection("c-1"))
	assert.Len(t, f.bc.byEvent(domain.EventUserStopTyping), 2)
	assert.Zero(t, ts.ClearConnection("c-1"))
}
