package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
	"github.com/cwrk-planet/chat-sync/internal/scheduler"
)

const saveTimeout = 5 * time.Second

// WhiteboardService relays drawing changes between members of a board and
// persists the latest snapshot once a connection stops drawing for the
// debounce delay.
type WhiteboardService struct {
	channels ChannelStore
	ids      Identities
	bc       Broadcaster
	timers   *scheduler.Debouncer
	delay    time.Duration
}

func NewWhiteboardService(channels ChannelStore, ids Identities, bc Broadcaster, delay time.Duration) *WhiteboardService {
	if delay <= 0 {
		delay = time.Second
	}
	return &WhiteboardService{
		channels: channels,
		ids:      ids,
		bc:       bc,
		timers:   scheduler.NewDebouncer(),
		delay:    delay,
	}
}

// JoinBoard adds the connection to the board's group and sends it the stored
// snapshot.
func (s *WhiteboardService) JoinBoard(ctx context.Context, connID, channelID string) (json.RawMessage, error) {
	if _, ok := s.ids.UserID(connID); !ok {
		return nil, domain.ErrUnauthenticated
	}
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Type != domain.ChannelWhiteboard {
		return nil, domain.ErrNotWhiteboard
	}
	s.bc.Join(connID, domain.WhiteboardGroup(channelID))

	snap, err := s.channels.LoadWhiteboard(ctx, channelID)
	if err != nil {
		slog.Error("load whiteboard failed", "channel_id", channelID, "err", err)
		snap = nil
	}
	s.bc.EmitTo(connID, domain.EventWhiteboardState, domain.WhiteboardStatePayload{
		ChannelID:      channelID,
		CanvasSnapshot: snap,
	})
	return snap, nil
}

// RelayChange forwards a change to the other board members and schedules a
// save of the snapshot it carries.
func (s *WhiteboardService) RelayChange(_ context.Context, connID string, p domain.WhiteboardUpdatePayload) error {
	if _, ok := s.ids.UserID(connID); !ok {
		return domain.ErrUnauthenticated
	}
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrMalformedPayload)
	}
	s.bc.EmitToGroup(domain.WhiteboardGroup(p.ChannelID), domain.EventWhiteboardUpdate, p, connID)

	if len(p.CanvasSnapshot) == 0 {
		return nil
	}
	snap := append(json.RawMessage(nil), p.CanvasSnapshot...)
	channelID := p.ChannelID
	s.timers.Schedule(saveKey(connID, channelID), s.delay, func() { s.save(channelID, snap) })
	return nil
}

// RelayCursor forwards a pointer position to the other board members.
func (s *WhiteboardService) RelayCursor(_ context.Context, connID string, p domain.CursorPayload) error {
	if p.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrMalformedPayload)
	}
	s.bc.EmitToGroup(domain.WhiteboardGroup(p.ChannelID), domain.EventUserCursor, p, connID)
	return nil
}

func (s *WhiteboardService) LoadBoard(ctx context.Context, channelID string) (json.RawMessage, error) {
	return s.channels.LoadWhiteboard(ctx, channelID)
}

// SaveBoard stores a snapshot immediately.
func (s *WhiteboardService) SaveBoard(ctx context.Context, channelID string, snapshot json.RawMessage) error {
	if len(snapshot) == 0 || !json.Valid(snapshot) {
		return fmt.Errorf("%w: snapshot must be valid json", domain.ErrMalformedPayload)
	}
	return s.channels.SaveWhiteboard(ctx, channelID, snapshot)
}

// FlushConnection saves every pending snapshot of connID now.
func (s *WhiteboardService) FlushConnection(connID string) int {
	return s.timers.FlushPrefix("wb|" + connID + "|")
}

// Close saves all pending snapshots and rejects new ones.
func (s *WhiteboardService) Close() { s.timers.Stop() }

func (s *WhiteboardService) save(channelID string, snap json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.channels.SaveWhiteboard(ctx, channelID, snap); err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			slog.Warn("whiteboard save for unknown channel", "channel_id", channelID)
			return
		}
		slog.Error("whiteboard save failed", "channel_id", channelID, "err", err)
	}
}

func saveKey(connID, channelID string) string { return "wb|" + connID + "|" + channelID }
